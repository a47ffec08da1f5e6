package services

import (
	"bytes"
	"fmt"
	"image/png"
	"time"

	"github.com/skip2/go-qrcode"

	"gigbounty-backend/models"
)

// QRCodeService handles QR code generation for escrow deposits
type QRCodeService struct{}

// NewQRCodeService creates a new QR code service
func NewQRCodeService() *QRCodeService {
	return &QRCodeService{}
}

// GenerateQRCode generates a deposit QR code for given address and amount
func (s *QRCodeService) GenerateQRCode(address, amount string) ([]byte, error) {
	payload := address
	if amount != "" {
		payload = address + "?amount=" + amount
	}
	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	// Convert to PNG
	buf := new(bytes.Buffer)
	err = png.Encode(buf, qr.Image(256))
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code to PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// HealthService handles health check business logic
type HealthService struct {
	startedAt time.Time
}

// NewHealthService creates a new health service
func NewHealthService() *HealthService {
	return &HealthService{startedAt: time.Now()}
}

// GetHealthStatus returns current health status
func (s *HealthService) GetHealthStatus() *models.HealthResponse {
	return &models.HealthResponse{
		Status:    "healthy",
		Message:   "GigBounty backend is running",
		UptimeSec: int64(time.Since(s.startedAt).Seconds()),
		Timestamp: time.Now().Unix(),
	}
}
