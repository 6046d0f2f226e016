package provider

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	identitymodels "profileclaim/internal/identity/models"
)

const (
	DefaultNVIEndpoint = "https://tckimlik.nvi.gov.tr/Service/KPSPublic.asmx"
	nviNamespace       = "http://tckimlik.nvi.gov.tr/WS"
	nviSOAPAction      = nviNamespace + "/TCKimlikNoDogrula"
	maxResponseBytes   = 64 << 10
)

// NVIClient calls the public KPS TCKimlikNoDogrula SOAP operation.
type NVIClient struct {
	id         string
	endpoint   string
	httpClient *http.Client
}

type NVIOption func(*NVIClient)

func WithHTTPClient(c *http.Client) NVIOption {
	return func(n *NVIClient) {
		if c != nil {
			n.httpClient = c
		}
	}
}

func NewNVIClient(endpoint string, opts ...NVIOption) *NVIClient {
	if endpoint == "" {
		endpoint = DefaultNVIEndpoint
	}
	c := &NVIClient{
		id:         "nvi",
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *NVIClient) ID() string { return c.id }

type nviEnvelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	Soap    string   `xml:"xmlns:soap,attr"`
	Body    struct {
		Request nviRequest `xml:"TCKimlikNoDogrula"`
	} `xml:"soap:Body"`
}

type nviRequest struct {
	XMLNS      string `xml:"xmlns,attr"`
	TCKimlikNo string `xml:"TCKimlikNo"`
	Ad         string `xml:"Ad"`
	Soyad      string `xml:"Soyad"`
	DogumYili  int    `xml:"DogumYili"`
}

type nviResponseEnvelope struct {
	Body struct {
		Response *struct {
			Result string `xml:"TCKimlikNoDogrulaResult"`
		} `xml:"TCKimlikNoDogrulaResponse"`
		Fault *struct {
			Code   string `xml:"faultcode"`
			String string `xml:"faultstring"`
		} `xml:"Fault"`
	} `xml:"Body"`
}

func (c *NVIClient) Verify(ctx context.Context, identity identitymodels.DeclaredIdentity) (bool, error) {
	body, err := encodeNVIRequest(identity)
	if err != nil {
		return false, NewError(ErrorBadData, c.id, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, NewError(ErrorContractMismatch, c.id, "build request", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `"`+nviSOAPAction+`"`)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, c.classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return false, c.classifyTransport(ctx, err)
	}
	return parseNVIResponse(c.id, resp.StatusCode, raw)
}

func (c *NVIClient) classifyTransport(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return NewError(ErrorTimeout, c.id, "request timed out", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return NewError(ErrorTimeout, c.id, "request timed out", err)
	}
	return NewError(ErrorProviderOutage, c.id, "request failed", err)
}

// encodeNVIRequest upper-cases names with Turkish casing rules, which the
// registry compares against.
func encodeNVIRequest(identity identitymodels.DeclaredIdentity) ([]byte, error) {
	var env nviEnvelope
	env.Soap = "http://schemas.xmlsoap.org/soap/envelope/"
	env.Body.Request = nviRequest{
		XMLNS:      nviNamespace,
		TCKimlikNo: identity.NationalID,
		Ad:         strings.ToUpperSpecial(unicode.TurkishCase, identity.FirstName),
		Soyad:      strings.ToUpperSpecial(unicode.TurkishCase, identity.LastName),
		DogumYili:  identity.BirthYear,
	}
	out, err := xml.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

func parseNVIResponse(providerID string, status int, body []byte) (bool, error) {
	var env nviResponseEnvelope
	decodeErr := xml.Unmarshal(body, &env)

	if decodeErr == nil && env.Body.Fault != nil {
		return false, NewError(ErrorBadData, providerID,
			fmt.Sprintf("soap fault %s: %s", env.Body.Fault.Code, env.Body.Fault.String), nil)
	}
	switch {
	case status == http.StatusTooManyRequests:
		return false, NewError(ErrorRateLimited, providerID, "rate limited", nil)
	case status >= 500:
		return false, NewError(ErrorProviderOutage, providerID, "status "+strconv.Itoa(status), nil)
	case status != http.StatusOK:
		return false, NewError(ErrorContractMismatch, providerID, "unexpected status "+strconv.Itoa(status), nil)
	}
	if decodeErr != nil {
		return false, NewError(ErrorBadData, providerID, "decode response", decodeErr)
	}
	if env.Body.Response == nil {
		return false, NewError(ErrorContractMismatch, providerID, "missing TCKimlikNoDogrulaResponse", nil)
	}
	verified, err := strconv.ParseBool(strings.TrimSpace(env.Body.Response.Result))
	if err != nil {
		return false, NewError(ErrorBadData, providerID, "result is not a boolean", err)
	}
	return verified, nil
}
