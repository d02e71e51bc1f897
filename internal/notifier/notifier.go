// Package notifier отправляет уведомления о подтверждённых бронях во
// внешнюю систему студии.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/sivanpabraj/studio-m/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с системой уведомлений.
// Сетевые ошибки и 5xx перезапрашиваются клиентом автоматически.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// reservationNotice — тело уведомления об одной брони.
type reservationNotice struct {
	Code          string            `json:"code"`
	CustomerName  string            `json:"customer_name"`
	CustomerPhone string            `json:"customer_phone"`
	Spec          model.ServiceSpec `json:"spec"`
	TotalCost     int64             `json:"total_cost"`
	DepositAmount int64             `json:"deposit_amount"`
	CreatedAt     time.Time         `json:"created_at"`
}

// NewClient создаёт клиент уведомлений по указанному адресу.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil
	if logger != nil {
		rc.Logger = zap.NewStdLog(logger)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc,
	}
}

// NotifyReservation отправляет сведения о созданной брони. Ошибка доставки
// не влияет на судьбу самой брони, вызывающий только логирует её.
func (c *Client) NotifyReservation(ctx context.Context, cust model.Customer, res model.Reservation) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("notifier client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(reservationNotice{
		Code:          res.Code,
		CustomerName:  cust.DisplayName,
		CustomerPhone: cust.Phone,
		Spec:          res.Spec,
		TotalCost:     res.TotalCost,
		DepositAmount: res.DepositAmount,
		CreatedAt:     res.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		base+"/api/reservations", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}
