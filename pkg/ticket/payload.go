package ticket

import (
	"encoding/json"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

// Payload is the JSON document encoded into a ticket QR code. Field names
// match the format printed on tickets already in circulation.
type Payload struct {
	ID       string    `json:"id"`
	Name     string    `json:"nombre"`
	Email    string    `json:"email"`
	Church   string    `json:"iglesia"`
	Sector   string    `json:"sector"`
	Amount   float64   `json:"monto"`
	Status   string    `json:"estado"`
	IssuedAt time.Time `json:"fecha"`
}

// Encode serialises the payload as compact JSON.
func Encode(p Payload) (string, error) {
	if p.ID == "" {
		return "", fmt.Errorf("ticket payload requires an id")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal ticket payload: %w", err)
	}
	return string(data), nil
}

// RenderPNG draws content as a QR code of size x size pixels.
func RenderPNG(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("qr content empty")
	}
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}
