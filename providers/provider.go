package providers

import (
	"strings"

	"github.com/shopspring/decimal"

	"sambaza/carriers"
)

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// DispatchResult is the single shape every provider integration is
// normalized into. Dispatchers never return a Go error: transport failures,
// provider rejections and unparseable bodies all come back as FAILED with the
// raw context preserved for audit.
type DispatchResult struct {
	Status          Status           `json:"status"`
	ProviderRef     string           `json:"provider_ref,omitempty"`
	ReportedBalance *decimal.Decimal `json:"reported_balance,omitempty"`
	RawResponse     string           `json:"raw_response,omitempty"`
	Err             string           `json:"error,omitempty"`
}

func Failed(raw, errMsg string) DispatchResult {
	return DispatchResult{Status: StatusFailed, RawResponse: raw, Err: errMsg}
}

// Dispatcher delivers airtime to one phone number. Implementations handle
// their own phone-number formatting; the destination arrives in canonical
// local form (07.../01...).
type Dispatcher interface {
	Name() string
	Dispatch(destination string, amount decimal.Decimal) DispatchResult
}

var dispatchers = map[string]Dispatcher{}

func Register(name string, d Dispatcher) {
	dispatchers[strings.ToLower(name)] = d
}

func Get(name string) Dispatcher {
	return dispatchers[strings.ToLower(name)]
}

// Gateway routes a dispatch to the provider configured for the carrier. The
// carrier→provider map is configuration, deliberately separate from the
// carrier→pool map.
type Gateway struct {
	routes map[carriers.Carrier]string
}

func NewGateway(routes map[carriers.Carrier]string) *Gateway {
	return &Gateway{routes: routes}
}

func (g *Gateway) Dispatch(carrier carriers.Carrier, destination string, amount decimal.Decimal) DispatchResult {
	name, ok := g.routes[carrier]
	if !ok {
		return Failed("", "no provider mapped for carrier "+string(carrier))
	}
	d := Get(name)
	if d == nil {
		return Failed("", "provider not registered: "+name)
	}
	return d.Dispatch(destination, amount)
}
