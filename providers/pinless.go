package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sambaza/config"
)

// ResponseParser extracts the recharge reference and the optional
// dealer-balance figure from the pinless API's free-text response body.
// Pluggable so a format change does not touch dispatch logic.
type ResponseParser interface {
	Parse(body string) (ref string, balance *decimal.Decimal, err error)
}

var (
	pinlessRefPattern     = regexp.MustCompile(`(?i)ref(?:erence)?[.:\s]+([A-Z0-9][A-Z0-9.\-]*)`)
	pinlessBalancePattern = regexp.MustCompile(`(?i)balance\s+is\s+(?:KES\s*)?([0-9][0-9,]*(?:\.[0-9]+)?)`)
)

type regexParser struct{}

func (regexParser) Parse(body string) (string, *decimal.Decimal, error) {
	m := pinlessRefPattern.FindStringSubmatch(body)
	if m == nil {
		return "", nil, fmt.Errorf("no recharge reference in response")
	}
	ref := strings.TrimRight(m[1], ".")

	// Balance is best-effort: the API omits it on some tariffs and that is
	// not an error.
	var balance *decimal.Decimal
	if bm := pinlessBalancePattern.FindStringSubmatch(body); bm != nil {
		if d, err := decimal.NewFromString(strings.ReplaceAll(bm[1], ",", "")); err == nil {
			balance = &d
		}
	}
	return ref, balance, nil
}

// PinlessClient talks to the dealer pinless recharge API: bearer-token auth
// via client-credentials, JSON request, free-text response.
type PinlessClient struct {
	http         *http.Client
	dispatchURL  string
	senderMsisdn string
	servicePin   string
	tokens       *TokenSource
	parser       ResponseParser
}

func NewPinlessClient(cfg config.PinlessConfig) *PinlessClient {
	hc := &http.Client{Timeout: cfg.Timeout}
	return &PinlessClient{
		http:         hc,
		dispatchURL:  cfg.DispatchURL,
		senderMsisdn: cfg.SenderMsisdn,
		servicePin:   cfg.ServicePin,
		tokens: NewTokenSource(func() (string, time.Duration, error) {
			return fetchClientCredentialsToken(hc, cfg.TokenURL, cfg.ClientID, cfg.ClientSecret)
		}),
		parser: regexParser{},
	}
}

func (p *PinlessClient) Name() string { return "pinless" }

func (p *PinlessClient) Dispatch(destination string, amount decimal.Decimal) DispatchResult {
	token, err := p.tokens.Token()
	if err != nil {
		return Failed("", err.Error())
	}

	payload := map[string]any{
		"senderMsisdn":   p.senderMsisdn,
		"servicePin":     p.servicePin,
		"amount":         amount.Mul(decimal.NewFromInt(100)).IntPart(), // minor units
		"receiverMsisdn": pinlessNumber(destination),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Failed("", err.Error())
	}

	req, err := http.NewRequest(http.MethodPost, p.dispatchURL, bytes.NewReader(body))
	if err != nil {
		return Failed("", err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return Failed("", err.Error())
	}
	defer resp.Body.Close()

	rawBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return Failed("", err.Error())
	}
	raw := string(rawBytes)

	if resp.StatusCode == http.StatusUnauthorized {
		p.tokens.Invalidate()
		return Failed(raw, "recharge rejected: "+resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return Failed(raw, "recharge returned "+resp.Status)
	}

	ref, balance, err := p.parser.Parse(raw)
	if err != nil {
		return Failed(raw, err.Error())
	}
	return DispatchResult{
		Status:          StatusSuccess,
		ProviderRef:     ref,
		ReportedBalance: balance,
		RawResponse:     raw,
	}
}

// pinlessNumber converts canonical local form to the 254... format this API
// expects.
func pinlessNumber(local string) string {
	if strings.HasPrefix(local, "0") {
		return "254" + local[1:]
	}
	return strings.TrimPrefix(local, "+")
}
