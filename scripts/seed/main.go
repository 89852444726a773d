//go:build ignore

// ===========================================================================
// Script tạo seed data cho development/testing
// Chạy: go run scripts/seed/main.go
// ===========================================================================

package main

import (
	"fmt"
	"log"
	"os"

	"supportdesk-gin/internal/config"
	"supportdesk-gin/internal/database"
	"supportdesk-gin/internal/models"
	"supportdesk-gin/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	fmt.Println("🌱 Bắt đầu seed data...")

	// Load config
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Không thể load config: %v", err)
	}

	// Khởi tạo logger
	zapLog, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Không thể tạo logger: %v", err)
	}

	// Kết nối database
	db, err := database.NewConnection(&cfg.Database, zapLog)
	if err != nil {
		log.Fatalf("Không thể kết nối database: %v", err)
	}

	fmt.Println("✅ Đã kết nối database")

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Không thể migrate: %v", err)
	}

	// =========================================================================
	// 1. Tạo Tenant demo
	// =========================================================================
	sessionID := "demo-session"
	tenant := &models.Tenant{
		Name:      "Toko Demo",
		APIKey:    "sk-demo-" + uuid.NewString(),
		Status:    models.TenantActive,
		SessionID: strPtr(sessionID),
		Settings: models.TenantSettings{
			Timezone:           "Asia/Jakarta",
			Language:           "id",
			AutomationEnabled:  true,
			EscalationKeywords: []string{"bos", "owner"},
		},
	}

	var existingTenant models.Tenant
	if err := db.Where("name = ?", tenant.Name).First(&existingTenant).Error; err == nil {
		fmt.Println("⚠️  Tenant 'Toko Demo' đã tồn tại, sử dụng bản ghi hiện có")
		tenant = &existingTenant
	} else {
		if err := db.Create(tenant).Error; err != nil {
			log.Fatalf("Không thể tạo tenant: %v", err)
		}
		fmt.Printf("✅ Đã tạo Tenant: %s (ID: %s)\n", tenant.Name, tenant.ID)
	}

	// =========================================================================
	// 2. Tạo Channel Session
	// =========================================================================
	session := &models.ChannelSession{
		SessionID: sessionID,
		TenantID:  uuidPtr(tenant.ID),
		Status:    models.SessionDisconnected,
	}

	var existingSession models.ChannelSession
	if err := db.Where("session_id = ?", sessionID).First(&existingSession).Error; err == nil {
		fmt.Printf("⚠️  Session '%s' đã tồn tại\n", sessionID)
		session = &existingSession
	} else {
		if err := db.Create(session).Error; err != nil {
			log.Fatalf("Không thể tạo session: %v", err)
		}
		fmt.Printf("✅ Đã tạo Session: %s\n", session.SessionID)
	}

	// =========================================================================
	// 3. Tạo Contact + Chat + Messages demo
	// =========================================================================
	contact := &models.Contact{
		TenantID:      tenant.ID,
		RemoteAddress: "628123456789",
		Name:          strPtr("Budi Santoso"),
	}

	var existingContact models.Contact
	if err := db.Where("tenant_id = ? AND remote_address = ?", tenant.ID, contact.RemoteAddress).
		First(&existingContact).Error; err == nil {
		fmt.Println("⚠️  Contact demo đã tồn tại")
		contact = &existingContact
	} else {
		if err := db.Create(contact).Error; err != nil {
			log.Fatalf("Không thể tạo contact: %v", err)
		}
		fmt.Printf("✅ Đã tạo Contact: %s\n", contact.RemoteAddress)

		chat := &models.Chat{
			TenantID:  tenant.ID,
			ContactID: contact.ID,
			Status:    models.ChatOpen,
		}
		if err := db.Create(chat).Error; err != nil {
			log.Fatalf("Không thể tạo chat: %v", err)
		}
		fmt.Printf("✅ Đã tạo Chat: %s\n", chat.ID)

		messages := []models.Message{
			{
				ChatID:           chat.ID,
				Direction:        models.DirectionIn,
				SenderType:       models.SenderCustomer,
				Body:             "Halo, apakah barang ready?",
				ContentType:      models.ContentText,
				ChannelMessageID: strPtr("seed-msg-1"),
			},
			{
				ChatID:           chat.ID,
				Direction:        models.DirectionOut,
				SenderType:       models.SenderAutomation,
				Body:             "Halo kak! Ready ya, silakan di-order 😊",
				ContentType:      models.ContentText,
				ChannelMessageID: strPtr("seed-msg-2"),
			},
		}
		for i := range messages {
			if err := db.Create(&messages[i]).Error; err != nil {
				zapLog.Warn("Không thể tạo message", zap.Error(err))
			}
		}
		fmt.Printf("✅ Đã tạo %d messages\n", len(messages))
	}

	// =========================================================================
	// Summary
	// =========================================================================
	fmt.Println("")
	fmt.Println("========================================")
	fmt.Println("🎉 Seed data hoàn tất!")
	fmt.Println("========================================")
	fmt.Println("")
	fmt.Printf("🔗 Tenant ID:  %s\n", tenant.ID)
	fmt.Printf("🔑 API Key:    %s\n", tenant.APIKey)
	fmt.Printf("🔗 Session ID: %s\n", sessionID)
	fmt.Println("")
	fmt.Println("💡 Test mock inbound:")
	fmt.Println(`   curl -X POST http://localhost:8080/api/v1/mock/inbound \`)
	fmt.Println(`     -H "Content-Type: application/json" \`)
	fmt.Printf(`     -d '{"session_id":"%s","remote_address":"628123456789","sender_name":"Budi","message":"Halo"}'`, sessionID)
	fmt.Println("")

	os.Exit(0)
}

// strPtr helper để tạo pointer từ string
func strPtr(s string) *string {
	return &s
}

// uuidPtr helper để tạo pointer từ UUID
func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
