package api

import (
	"fmt"
	"strings"

	"github.com/asque/asque/pkg/apperrors"
	"github.com/asque/asque/pkg/store"
)

// Request payloads. Validate accumulates every offending field so one
// response enumerates all of them.

// ClientRequest creates or updates a client.
type ClientRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
	Address string `json:"address,omitempty"`
}

func (r *ClientRequest) Validate() error {
	var fields []apperrors.FieldError
	if strings.TrimSpace(r.Name) == "" {
		fields = append(fields, apperrors.FieldError{Field: "name", Message: "name is required"})
	}
	if r.Email != "" && !strings.Contains(r.Email, "@") {
		fields = append(fields, apperrors.FieldError{Field: "email", Message: "email is not valid"})
	}
	if len(fields) > 0 {
		return apperrors.NewValidationError(fields...)
	}
	return nil
}

// ProductRequest creates or updates a catalog product.
type ProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	UnitPrice   int64  `json:"unitPrice"`
	Unit        string `json:"unit,omitempty"`
}

func (r *ProductRequest) Validate() error {
	var fields []apperrors.FieldError
	if strings.TrimSpace(r.Name) == "" {
		fields = append(fields, apperrors.FieldError{Field: "name", Message: "name is required"})
	}
	if r.UnitPrice < 0 {
		fields = append(fields, apperrors.FieldError{Field: "unitPrice", Message: "unitPrice must not be negative"})
	}
	if len(fields) > 0 {
		return apperrors.NewValidationError(fields...)
	}
	return nil
}

// QuoteItemRequest is one line of a quote request.
type QuoteItemRequest struct {
	ProductID   string `json:"productId,omitempty"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
}

// QuoteRequest creates a quote. TaxRate falls back to the user's
// settings when omitted.
type QuoteRequest struct {
	ClientID string             `json:"clientId"`
	Notes    string             `json:"notes,omitempty"`
	TaxRate  *float64           `json:"taxRate,omitempty"`
	Items    []QuoteItemRequest `json:"items"`
}

func (r *QuoteRequest) Validate() error {
	var fields []apperrors.FieldError
	if strings.TrimSpace(r.ClientID) == "" {
		fields = append(fields, apperrors.FieldError{Field: "clientId", Message: "clientId is required"})
	}
	if len(r.Items) == 0 {
		fields = append(fields, apperrors.FieldError{Field: "items", Message: "at least one item is required"})
	}
	if r.TaxRate != nil && (*r.TaxRate < 0 || *r.TaxRate > 100) {
		fields = append(fields, apperrors.FieldError{Field: "taxRate", Message: "taxRate must be between 0 and 100"})
	}
	for i, item := range r.Items {
		if strings.TrimSpace(item.Description) == "" {
			fields = append(fields, apperrors.FieldError{
				Field:   fmt.Sprintf("items[%d].description", i),
				Message: "description is required",
			})
		}
		if item.Quantity <= 0 {
			fields = append(fields, apperrors.FieldError{
				Field:   fmt.Sprintf("items[%d].quantity", i),
				Message: "quantity must be positive",
			})
		}
		if item.UnitPrice < 0 {
			fields = append(fields, apperrors.FieldError{
				Field:   fmt.Sprintf("items[%d].unitPrice", i),
				Message: "unitPrice must not be negative",
			})
		}
	}
	if len(fields) > 0 {
		return apperrors.NewValidationError(fields...)
	}
	return nil
}

// QuoteStatusRequest transitions a quote's status.
type QuoteStatusRequest struct {
	Status store.QuoteStatus `json:"status"`
}

func (r *QuoteStatusRequest) Validate() error {
	switch r.Status {
	case store.QuoteDraft, store.QuoteSent, store.QuoteAccepted, store.QuoteRejected:
		return nil
	}
	return apperrors.NewValidationError(apperrors.FieldError{
		Field:   "status",
		Message: "status must be one of DRAFT, SENT, ACCEPTED, REJECTED",
	})
}

// SettingsRequest replaces the user's invoicing defaults.
type SettingsRequest struct {
	CompanyName    string  `json:"companyName,omitempty"`
	CompanyEmail   string  `json:"companyEmail,omitempty"`
	CompanyPhone   string  `json:"companyPhone,omitempty"`
	CompanyAddress string  `json:"companyAddress,omitempty"`
	TaxRate        float64 `json:"taxRate"`
	Currency       string  `json:"currency,omitempty"`
	QuoteValidDays int     `json:"quoteValidDays,omitempty"`
}

func (r *SettingsRequest) Validate() error {
	var fields []apperrors.FieldError
	if r.TaxRate < 0 || r.TaxRate > 100 {
		fields = append(fields, apperrors.FieldError{Field: "taxRate", Message: "taxRate must be between 0 and 100"})
	}
	if r.CompanyEmail != "" && !strings.Contains(r.CompanyEmail, "@") {
		fields = append(fields, apperrors.FieldError{Field: "companyEmail", Message: "companyEmail is not valid"})
	}
	if r.QuoteValidDays < 0 {
		fields = append(fields, apperrors.FieldError{Field: "quoteValidDays", Message: "quoteValidDays must not be negative"})
	}
	if len(fields) > 0 {
		return apperrors.NewValidationError(fields...)
	}
	return nil
}
