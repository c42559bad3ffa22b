package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/baharkarakas/insider-wallet/internal/api/httpx"
	"github.com/baharkarakas/insider-wallet/internal/models"
)

var ErrMalformed = errors.New("malformed response")

// ---------- session ----------

func (c *Client) Login(ctx context.Context, cr models.Credentials) error {
	_, err := c.post(ctx, "/api/login", cr)
	return err
}

func (c *Client) LoginByID(ctx context.Context, userID string) error {
	_, err := c.post(ctx, "/api/login_by_id", map[string]string{"user_id": userID})
	return err
}

func (c *Client) Register(ctx context.Context, r models.Registration) error {
	_, err := c.post(ctx, "/api/register", r)
	return err
}

func (c *Client) Logout(ctx context.Context) error {
	_, err := c.post(ctx, "/api/logout", nil)
	return err
}

// ---------- profile ----------

func (c *Client) Me(ctx context.Context) (models.User, error) {
	p, err := c.get(ctx, "/api/me")
	if err != nil {
		return models.User{}, err
	}
	var u models.User
	if err := field(p, "user", &u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (c *Client) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (string, error) {
	p, err := c.put(ctx, "/api/me", upd)
	if err != nil {
		return "", err
	}
	return p.String("message"), nil
}

func (c *Client) ChangePassword(ctx context.Context, pc models.PasswordChange) (string, error) {
	p, err := c.put(ctx, "/api/me/password", pc)
	if err != nil {
		return "", err
	}
	return p.String("message"), nil
}

// ---------- transactions ----------

// Transactions returns the list in server order (newest first).
func (c *Client) Transactions(ctx context.Context, q models.TxQuery) ([]models.Transaction, error) {
	path := "/api/transactions"
	if enc := q.Values().Encode(); enc != "" {
		path += "?" + enc
	}
	p, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var rows []json.RawMessage
	found, err := p.Field("items", &rows)
	if err == nil && !found {
		_, err = p.Field("transactions", &rows)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	// one bad row must not cost the whole list
	items, err := models.DecodeTransactions(rows)
	if err != nil {
		c.log.Warn("transaction rows skipped", "path", path, "kept", len(items), "err", err)
	}
	return items, nil
}

func (c *Client) Transaction(ctx context.Context, id int64) (models.Transaction, error) {
	p, err := c.get(ctx, "/api/transactions/"+strconv.FormatInt(id, 10))
	if err != nil {
		return models.Transaction{}, err
	}
	var tx models.Transaction
	if err := field(p, "transaction", &tx); err != nil {
		return models.Transaction{}, err
	}
	return tx, nil
}

func (c *Client) Transfer(ctx context.Context, r models.TransferRequest) error {
	_, err := c.post(ctx, "/api/transfer", r)
	return err
}

// ---------- invoices & payment ----------

func (c *Client) CreateInvoice(ctx context.Context, r models.InvoiceRequest) (models.Invoice, error) {
	p, err := c.post(ctx, "/api/invoices", r)
	if err != nil {
		return models.Invoice{}, err
	}
	var inv models.Invoice
	if err := field(p, "invoice", &inv); err != nil {
		return models.Invoice{}, err
	}
	return inv, nil
}

func (c *Client) Invoice(ctx context.Context, id int64) (models.Invoice, error) {
	p, err := c.get(ctx, "/api/invoices/"+strconv.FormatInt(id, 10))
	if err != nil {
		return models.Invoice{}, err
	}
	var inv models.Invoice
	if err := field(p, "invoice", &inv); err != nil {
		return models.Invoice{}, err
	}
	return inv, nil
}

func (c *Client) PreviewPaylink(ctx context.Context, link string) (models.PaylinkInvoice, error) {
	p, err := c.post(ctx, "/api/pay/preview", map[string]string{"paylink": link})
	if err != nil {
		return models.PaylinkInvoice{}, err
	}
	var inv models.PaylinkInvoice
	if err := field(p, "invoice", &inv); err != nil {
		return models.PaylinkInvoice{}, err
	}
	return inv, nil
}

func (c *Client) PayInvoice(ctx context.Context, id int64) error {
	_, err := c.post(ctx, "/api/pay", map[string]int64{"invoice_id": id})
	return err
}

func (c *Client) PayPaylink(ctx context.Context, link string) error {
	_, err := c.post(ctx, "/api/pay", map[string]string{"paylink": link})
	return err
}

// CreateQR accepts either the JSON form (paylink + data URL) or a PNG attachment.
func (c *Client) CreateQR(ctx context.Context, r models.InvoiceRequest) (models.QRCode, error) {
	p, err := c.post(ctx, "/api/qr/create", r)
	if err != nil {
		return models.QRCode{}, err
	}
	if p.IsBinary() {
		return models.QRCode{PNG: p.Binary}, nil
	}
	qr := models.QRCode{Paylink: p.String("paylink")}
	if data := p.String("qr_png_base64"); data != "" {
		png, err := decodeDataURL(data)
		if err != nil {
			return models.QRCode{}, fmt.Errorf("%w: qr image: %v", ErrMalformed, err)
		}
		qr.PNG = png
	}
	return qr, nil
}

func decodeDataURL(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		meta, data, ok := strings.Cut(s, ",")
		if !ok {
			return nil, errors.New("no data section")
		}
		if !strings.HasSuffix(meta, ";base64") {
			dec, err := url.PathUnescape(data)
			return []byte(dec), err
		}
		s = data
	}
	return base64.StdEncoding.DecodeString(s)
}

func field(p httpx.Payload, key string, v interface{}) error {
	found, err := p.Field(key, v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
	}
	if !found {
		return fmt.Errorf("%w: missing %s", ErrMalformed, key)
	}
	return nil
}
