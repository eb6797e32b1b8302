package worker

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/yazamuk/stockgift/internal/models"
)

func testGift() *models.Gift {
	return &models.Gift{
		ID:          "gift-1",
		SenderName:  "Sam Sender",
		Amount:      decimal.RequireFromString("119.98"),
		StockSymbol: "TSLA",
	}
}

func TestGiftMessage(t *testing.T) {
	msg := giftMessage(testGift(), "https://stockgift.example/")

	if !strings.Contains(msg, "Sam Sender") {
		t.Error("expected the sender's name in the message")
	}
	if !strings.Contains(msg, "$119.98") {
		t.Error("expected the formatted amount in the message")
	}
	if !strings.Contains(msg, "https://stockgift.example/claim/gift-1") {
		t.Errorf("expected the claim link without a doubled slash, got %q", msg)
	}
}

func TestReminderMessage(t *testing.T) {
	msg := reminderMessage(testGift(), "https://stockgift.example")

	if !strings.Contains(msg, "Reminder") {
		t.Error("expected a reminder framing")
	}
	if !strings.Contains(msg, "https://stockgift.example/claim/gift-1") {
		t.Errorf("expected the claim link, got %q", msg)
	}
}

func TestStockImageURL(t *testing.T) {
	if got := stockImageURL("TSLA", "https://stockgift.example"); got != "https://stockgift.example/images/tsla.png" {
		t.Errorf("expected lowercased image path, got %q", got)
	}
	if got := stockImageURL("TSLA", "http://localhost:8080"); got != "" {
		t.Errorf("expected no media for a localhost base URL, got %q", got)
	}
	if got := stockImageURL("TSLA", "http://127.0.0.1:8080"); got != "" {
		t.Errorf("expected no media for a loopback base URL, got %q", got)
	}
}
