package lms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/pkg/clients"
)

const (
	maxRetries    = 3
	retryInterval = time.Second * 1
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrUnavailable      = errors.New("learning platform unavailable")
)

type course struct {
	ID           int64  `json:"id"`
	InstructorID int64  `json:"instructorId"`
	Title        string `json:"title"`
	PriceCents   int64  `json:"priceCents"`
	Currency     string `json:"currency"`
	Published    bool   `json:"published"`
}

type enrollment struct {
	Enrolled bool `json:"enrolled"`
}

type grantRequest struct {
	OrderNumber string  `json:"orderNumber"`
	UserID      int64   `json:"userId"`
	CourseIDs   []int64 `json:"courseIds"`
}

type notification struct {
	UserID  int64  `json:"userId"`
	Message string `json:"message"`
}

// Client talks to the learning platform that owns courses, enrollments and notifications.
type Client struct {
	url           string
	client        clients.HTTPClientI
	retryInterval time.Duration
}

func New(url string, client clients.HTTPClientI) *Client {
	return &Client{
		url:           url,
		client:        client,
		retryInterval: retryInterval,
	}
}

// GetCoursePrice returns nil for a course the platform does not know.
func (c *Client) GetCoursePrice(ctx context.Context, courseID int64) (*domain.CourseQuote, error) {
	status, body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/courses/%d", courseID), nil)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("get course %d: %w: %d", courseID, ErrUnexpectedStatus, status)
	}

	var resp course
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse course: %w", err)
	}
	return &domain.CourseQuote{
		CourseID:     courseID,
		InstructorID: resp.InstructorID,
		Title:        resp.Title,
		PriceCents:   resp.PriceCents,
		Currency:     resp.Currency,
		Published:    resp.Published,
	}, nil
}

func (c *Client) IsEnrolled(ctx context.Context, userID, courseID int64) (bool, error) {
	status, body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/users/%d/enrollments/%d", userID, courseID), nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("check enrollment: %w: %d", ErrUnexpectedStatus, status)
	}
	var resp enrollment
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("failed to parse enrollment: %w", err)
	}
	return resp.Enrolled, nil
}

// GrantEnrollment gives the buyer access to every course of a paid order. The platform
// treats a repeated order number as already granted.
func (c *Client) GrantEnrollment(ctx context.Context, msg domain.OrderPaidMessage) error {
	status, _, err := c.do(ctx, http.MethodPost, "/api/enrollments", grantRequest{
		OrderNumber: msg.OrderNumber,
		UserID:      msg.UserID,
		CourseIDs:   msg.CourseIDs,
	})
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusConflict:
		zap.L().Info("enrollment granted", zap.String("order_number", msg.OrderNumber), zap.Int64("user_id", msg.UserID))
		return nil
	default:
		return fmt.Errorf("grant enrollment: %w: %d", ErrUnexpectedStatus, status)
	}
}

func (c *Client) SendNotification(ctx context.Context, userID int64, message string) error {
	status, _, err := c.do(ctx, http.MethodPost, "/api/notifications", notification{UserID: userID, Message: message})
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return fmt.Errorf("send notification: %w: %d", ErrUnexpectedStatus, status)
	}
	return nil
}

// do retries transport errors, 5xx and 429 responses, honouring Retry-After.
func (c *Client) do(ctx context.Context, method, path string, in any) (int, []byte, error) {
	url := c.url + path
	var payload []byte
	headers := http.Header{}
	headers.Set("Accept", "application/json")
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return 0, nil, err
		}
		headers.Set("Content-Type", "application/json")
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		var (
			statusCode  int
			respBody    []byte
			respHeaders http.Header
			err         error
		)
		if method == http.MethodGet {
			statusCode, respBody, respHeaders, err = c.client.Get(ctx, url, headers)
		} else {
			statusCode, respBody, respHeaders, err = c.client.Post(ctx, url, headers, payload)
		}

		wait := c.retryInterval * time.Duration(attempt)
		switch {
		case err != nil:
			lastErr = err
		case statusCode == http.StatusTooManyRequests:
			wait = c.retryAfter(respHeaders, wait)
			lastErr = fmt.Errorf("%w: rate limited", ErrUnavailable)
			zap.L().Warn("Rate limit detected, retrying", zap.String("path", path), zap.Int("attempt", attempt), zap.Duration("retryAfter", wait))
		case statusCode >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("%w: status %d", ErrUnavailable, statusCode)
		default:
			return statusCode, respBody, nil
		}

		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	zap.L().Error("learning platform request failed", zap.String("path", path), zap.Int("retries", maxRetries), zap.Error(lastErr))
	return 0, nil, fmt.Errorf("%s %s after %d retries: %w", method, path, maxRetries, lastErr)
}

func (c *Client) retryAfter(headers http.Header, fallback time.Duration) time.Duration {
	if v := headers.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
