package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kat-co/vala"
)

// Subscription is one exchange/instrument pair to reconstruct, parsed from
// a subscription file's "exchange_name,instmt_name,instmt_code" lines.
// InstrumentName is the human-facing display name; InstrumentCode is the
// product id used verbatim on the wire (Gdax "BTC-USD", Bitfinex
// "tBTCUSD") and is what adapters and REST clients key off of.
type Subscription struct {
	Exchange       string
	InstrumentName string
	InstrumentCode string
}

// ParseSubscriptionFile reads path and returns its subscriptions, one per
// non-blank, non-comment line of "exchange_name,instmt_name,instmt_code".
// Exchange names are lowercased; instrument fields are kept verbatim since
// exchanges differ in case conventions.
func ParseSubscriptionFile(path string) ([]Subscription, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open subscription file: %w", err)
	}
	defer f.Close()
	return parseSubscriptions(f)
}

func parseSubscriptions(r io.Reader) ([]Subscription, error) {
	var subs []Subscription
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		parts := strings.SplitN(line, ",", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("config: line %d: expected \"exchange,instmt_name,instmt_code\", got %q", lineNo, line)
		}
		exchange := strings.ToLower(strings.TrimSpace(parts[0]))
		instmtName := strings.TrimSpace(parts[1])
		instmtCode := strings.TrimSpace(parts[2])
		if err := vala.BeginValidation().Validate(
			vala.StringNotEmpty(exchange, fmt.Sprintf("line %d: exchange", lineNo)),
			vala.StringNotEmpty(instmtName, fmt.Sprintf("line %d: instmt_name", lineNo)),
			vala.StringNotEmpty(instmtCode, fmt.Sprintf("line %d: instmt_code", lineNo)),
		).Check(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		subs = append(subs, Subscription{Exchange: exchange, InstrumentName: instmtName, InstrumentCode: instmtCode})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: scan subscription file: %w", err)
	}
	return subs, nil
}
