package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"sambaza/config"
)

// AfricasTalkingClient sends airtime through the bulk airtime endpoint:
// form-encoded request with an apiKey header, JSON response carrying a
// per-recipient status list. Used for the carriers settled through the
// aggregator pool.
type AfricasTalkingClient struct {
	http     *http.Client
	url      string
	username string
	apiKey   string
	currency string
}

func NewAfricasTalkingClient(cfg config.AfricasTalkingConfig) *AfricasTalkingClient {
	return &AfricasTalkingClient{
		http:     &http.Client{Timeout: cfg.Timeout},
		url:      cfg.URL,
		username: cfg.Username,
		apiKey:   cfg.APIKey,
		currency: cfg.Currency,
	}
}

func (c *AfricasTalkingClient) Name() string { return "africastalking" }

type atRecipientStatus struct {
	PhoneNumber  string `json:"phoneNumber"`
	Amount       string `json:"amount"`
	Status       string `json:"status"`
	RequestID    string `json:"requestId"`
	ErrorMessage string `json:"errorMessage"`
}

type atSendResponse struct {
	ErrorMessage string              `json:"errorMessage"`
	NumSent      int                 `json:"numSent"`
	Responses    []atRecipientStatus `json:"responses"`
}

func (c *AfricasTalkingClient) Dispatch(destination string, amount decimal.Decimal) DispatchResult {
	recipients, err := json.Marshal([]map[string]string{{
		"phoneNumber": atNumber(destination),
		"amount":      fmt.Sprintf("%s %s", c.currency, amount.StringFixed(2)),
	}})
	if err != nil {
		return Failed("", err.Error())
	}

	form := url.Values{
		"username":   {c.username},
		"recipients": {string(recipients)},
	}

	req, err := http.NewRequest(http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return Failed("", err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Failed("", err.Error())
	}
	defer resp.Body.Close()

	rawBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return Failed("", err.Error())
	}
	raw := string(rawBytes)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Failed(raw, "airtime send returned "+resp.Status)
	}

	var parsed atSendResponse
	if err := json.Unmarshal(rawBytes, &parsed); err != nil {
		return Failed(raw, "unparseable airtime response: "+err.Error())
	}
	if len(parsed.Responses) == 0 {
		msg := parsed.ErrorMessage
		if msg == "" || msg == "None" {
			msg = "empty recipient status list"
		}
		return Failed(raw, msg)
	}

	r := parsed.Responses[0]
	switch r.Status {
	case "Sent", "Success":
		// This API never reports a float balance; ReportedBalance stays nil.
		return DispatchResult{Status: StatusSuccess, ProviderRef: r.RequestID, RawResponse: raw}
	default:
		msg := r.ErrorMessage
		if msg == "" || msg == "None" {
			msg = "recipient status " + r.Status
		}
		return Failed(raw, msg)
	}
}

// atNumber converts canonical local form to the +254... format this API
// expects.
func atNumber(local string) string {
	if strings.HasPrefix(local, "0") {
		return "+254" + local[1:]
	}
	if !strings.HasPrefix(local, "+") {
		return "+" + local
	}
	return local
}
