package mpesa

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rookgm/chatpesa/internal/models"
)

// callback metadata item names
const (
	ItemAmount           = "Amount"
	ItemReceiptNumber    = "MpesaReceiptNumber"
	ItemPhoneNumber      = "PhoneNumber"
	ItemAccountReference = "AccountReference"
	ItemTransactionDate  = "TransactionDate"
	ItemPayerName        = "PayerName"
	ItemFirstName        = "FirstName"
	ItemMiddleName       = "MiddleName"
	ItemLastName         = "LastName"
)

// Callback is STK push result delivered to callback url
type Callback struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallback is result of one STK push
type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        json.Number       `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	AccountReference  string            `json:"AccountReference,omitempty"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

// CallbackMetadata is list of name/value items, present on successful payment
type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem value may be number or string
type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

// ParseCallback decodes callback body, numbers are kept as is to not lose phone digits
func ParseCallback(r io.Reader) (*Callback, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	cb := Callback{}
	if err := dec.Decode(&cb); err != nil {
		return nil, fmt.Errorf("decode callback: %w", err)
	}

	if cb.Body.STKCallback.ResultCode == "" {
		return nil, fmt.Errorf("decode callback: %w: missing result code", models.ErrInvalidInput)
	}

	if _, err := cb.Body.STKCallback.ResultCode.Int64(); err != nil {
		return nil, fmt.Errorf("decode callback: %w: result code %q", models.ErrInvalidInput, cb.Body.STKCallback.ResultCode)
	}

	return &cb, nil
}

// Item returns metadata value as string
func (sc *STKCallback) Item(name string) (string, bool) {
	if sc.CallbackMetadata == nil {
		return "", false
	}

	for _, item := range sc.CallbackMetadata.Item {
		if strings.EqualFold(item.Name, name) {
			s := valueString(item.Value)
			return s, s != ""
		}
	}

	return "", false
}

// PaymentResult converts callback to provider-independent payment result
func (cb *Callback) PaymentResult() models.PaymentResult {
	sc := &cb.Body.STKCallback

	code, _ := sc.ResultCode.Int64()
	res := models.PaymentResult{
		AccountReference:  strings.TrimSpace(sc.AccountReference),
		CheckoutRequestID: sc.CheckoutRequestID,
		MerchantRequestID: sc.MerchantRequestID,
		ResultCode:        code,
		ResultDesc:        sc.ResultDesc,
	}

	if res.AccountReference == "" {
		res.AccountReference, _ = sc.Item(ItemAccountReference)
	}
	res.Receipt, _ = sc.Item(ItemReceiptNumber)
	res.Phone, _ = sc.Item(ItemPhoneNumber)
	if amount, ok := sc.Item(ItemAmount); ok {
		res.Amount = parseAmount(amount)
	}
	res.PayerName = sc.payerName()

	return res
}

func (sc *STKCallback) payerName() string {
	if name, ok := sc.Item(ItemPayerName); ok {
		return name
	}

	var parts []string
	for _, item := range []string{ItemFirstName, ItemMiddleName, ItemLastName} {
		if v, ok := sc.Item(item); ok {
			parts = append(parts, v)
		}
	}

	return strings.Join(parts, " ")
}

// parseAmount returns whole amount, 0 when amount is missing or has a fraction
func parseAmount(s string) int64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || f != math.Trunc(f) || f > math.MaxInt64 {
		return 0
	}
	return int64(f)
}

func valueString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// CallbackAck is response expected by provider
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// Accepted is the only acknowledgement sent back to provider
var Accepted = CallbackAck{ResultCode: 0, ResultDesc: "Accepted"}
