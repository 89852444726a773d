package models

// ===========================================================================
// Models Index
// Cung cấp danh sách tất cả models cho GORM AutoMigrate
// ===========================================================================

// AllModels trả về danh sách tất cả models
// Dùng cho database.AutoMigrate() để tự động tạo/update tables
func AllModels() []interface{} {
	return []interface{}{
		&Tenant{},         // Doanh nghiệp
		&ChannelSession{}, // Phiên kết nối gateway
		&Contact{},        // Khách hàng
		&Chat{},           // Cuộc hội thoại
		&Message{},        // Tin nhắn
	}
}
