package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrContractNotFound = errors.New("contract_not_found")
	ErrShopMismatch     = errors.New("contract_shop_mismatch")
	ErrInvalidContract  = errors.New("invalid_contract")
	ErrInvalidShop      = errors.New("invalid_shop")
)

// TransportError is a remote call that failed or timed out. The outcome on the remote is unknown.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Remote() bool { return true }

type UserError struct {
	Code    string   `json:"code"`
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// UserErrors is a remote mutation that was rejected with field-level errors.
type UserErrors struct {
	Op     string
	Errors []UserError
}

func (e *UserErrors) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ue := range e.Errors {
		if ue.Code != "" {
			msgs = append(msgs, ue.Code+": "+ue.Message)
			continue
		}
		msgs = append(msgs, ue.Message)
	}
	return fmt.Sprintf("remote %s rejected: %s", e.Op, strings.Join(msgs, "; "))
}

func (e *UserErrors) Remote() bool { return true }

// StoreError wraps a local persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsRemoteError reports whether err came from the remote gateway.
func IsRemoteError(err error) bool {
	var transport *TransportError
	var rejected *UserErrors
	return errors.As(err, &transport) || errors.As(err, &rejected)
}
