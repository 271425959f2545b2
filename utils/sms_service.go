package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

// SMSService handles OTP delivery through the Kavenegar verify/lookup API
type SMSService struct {
	APIKey   string
	Template string
	BaseURL  string
	Client   *http.Client
}

// kavenegarReturn is the "return" envelope of every Kavenegar response
type kavenegarReturn struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type kavenegarResponse struct {
	Return kavenegarReturn `json:"return"`
}

// NewSMSService creates a new SMS service instance from the environment
func NewSMSService() *SMSService {
	return &SMSService{
		APIKey:   os.Getenv("KAVENEGAR_API_KEY"),
		Template: os.Getenv("KAVENEGAR_TEMPLATE"),
		BaseURL:  "https://api.kavenegar.com/v1",
		Client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// SendOtp delivers a verification code to the phone number using the
// configured lookup template. The code travels out-of-band only; it is never
// echoed back through the API.
func (s *SMSService) SendOtp(ctx context.Context, phone, code string) error {
	if s.APIKey == "" || s.Template == "" {
		return errors.New("kavenegar API key or template is not configured")
	}

	params := url.Values{}
	params.Set("receptor", phone)
	params.Set("token", code)
	params.Set("template", s.Template)

	endpoint := fmt.Sprintf("%s/%s/verify/lookup.json?%s", s.BaseURL, s.APIKey, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create SMS request: %w", err)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach SMS provider: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read SMS provider response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("SMS provider returned status %d", resp.StatusCode)
	}

	var kr kavenegarResponse
	if err := json.Unmarshal(body, &kr); err != nil {
		// Some gateway errors come back as plain text with a 200
		return fmt.Errorf("failed to parse SMS provider response: %w", err)
	}

	if kr.Return.Status != http.StatusOK {
		return fmt.Errorf("SMS dispatch rejected: %s", kr.Return.Message)
	}

	return nil
}
