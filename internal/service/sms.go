package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/iliyamo/autopoint-backend/internal/config"
)

// SMSSender delivers one text message. Implementations must be safe for
// concurrent use.
type SMSSender interface {
	Send(ctx context.Context, phone, text string) error
}

// SMSClient posts messages to the vendor HTTP API. Outbound calls are
// throttled with a token bucket so a burst of sign-ups cannot exceed the
// vendor quota.
type SMSClient struct {
	cfg     config.SMSConfig
	http    *http.Client
	limiter *rate.Limiter
}

func NewSMSClient(cfg config.SMSConfig) *SMSClient {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	return &SMSClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

type smsRequest struct {
	MobilePhone string `json:"mobile_phone"`
	Message     string `json:"message"`
	From        string `json:"from"`
}

// Send waits for a vendor slot and posts the message. A 2xx response whose
// JSON body reports status "error" is still a failure.
func (c *SMSClient) Send(ctx context.Context, phone, text string) error {
	if c.cfg.APIURL == "" {
		return fmt.Errorf("sms: vendor url not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("sms: throttle: %w", err)
	}
	body, err := json.Marshal(smsRequest{
		MobilePhone: strings.TrimPrefix(phone, "+"),
		Message:     text,
		From:        c.cfg.Sender,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Login != "" {
		req.SetBasicAuth(c.cfg.Login, c.cfg.Password)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sms: request: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("sms: vendor status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if gjson.ValidBytes(raw) {
		if st := gjson.GetBytes(raw, "status"); st.Exists() && strings.EqualFold(st.String(), "error") {
			return fmt.Errorf("sms: vendor rejected message: %s", gjson.GetBytes(raw, "message").String())
		}
	}
	return nil
}

// CodeMessage is the text sent with a one-time code.
func CodeMessage(code string) string {
	return "AutoPoint: ваш код подтверждения " + code
}
