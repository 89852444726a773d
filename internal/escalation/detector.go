package escalation

import (
	"strings"

	"go.uber.org/zap"
)

// ===========================================================================
// Escalation Detector
// Heuristic phát hiện khách hàng muốn nói chuyện với người thật
// Automation engine gọi check trước khi tự động trả lời; inbound pipeline
// dùng để auto-escalate khi khách gõ keyword
// ===========================================================================

// defaultKeywords danh sách keyword mặc định (tiếng Indonesia + tiếng Anh)
// Keyword một từ match theo word boundary, cụm từ match theo substring
var defaultKeywords = []string{
	"human",
	"manusia",
	"agent",
	"agen",
	"cs",
	"customer service",
	"komplain",
	"complaint",
	"marah",
	"angry",
	"kesal",
	"refund",
	"pengembalian",
	"cancel",
	"batal",
	"bicara dengan",
	"speak to",
	"talk to",
	"tidak puas",
	"not satisfied",
	"kecewa",
}

// Result kết quả detect
type Result struct {
	// ShouldEscalate có nên chuyển cho agent không
	ShouldEscalate bool

	// MatchedKeyword keyword đã match (nếu có)
	MatchedKeyword string
}

// Detector interface cho escalation heuristic
type Detector interface {
	// Detect kiểm tra content có chứa tín hiệu muốn gặp agent không
	// extraKeywords là keywords bổ sung theo cấu hình của tenant
	Detect(content string, extraKeywords []string) Result
}

// detector triển khai Detector
type detector struct {
	logger *zap.Logger
}

// NewDetector tạo instance mới của Detector
func NewDetector(logger *zap.Logger) Detector {
	return &detector{logger: logger}
}

// Detect kiểm tra content có chứa escalation keyword không
func (d *detector) Detect(content string, extraKeywords []string) Result {
	normalized := strings.ToLower(strings.TrimSpace(content))
	if normalized == "" {
		return Result{}
	}

	words := wordSet(normalized)

	keywords := make([]string, 0, len(defaultKeywords)+len(extraKeywords))
	keywords = append(keywords, defaultKeywords...)
	keywords = append(keywords, extraKeywords...)

	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" {
			continue
		}

		if strings.Contains(keyword, " ") {
			// Cụm từ: substring match
			if strings.Contains(normalized, keyword) {
				d.logger.Debug("escalation keyword matched",
					zap.String("keyword", keyword))
				return Result{ShouldEscalate: true, MatchedKeyword: keyword}
			}
			continue
		}

		// Từ đơn: word boundary match, tránh "cs" match "pics"
		if _, ok := words[keyword]; ok {
			d.logger.Debug("escalation keyword matched",
				zap.String("keyword", keyword))
			return Result{ShouldEscalate: true, MatchedKeyword: keyword}
		}
	}

	return Result{}
}

// wordSet tách content thành set các từ, bỏ dấu câu ở đầu/cuối từ
func wordSet(content string) map[string]struct{} {
	fields := strings.FieldsFunc(content, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', ',', '.', '!', '?', ';', ':', '(', ')', '"', '\'':
			return true
		}
		return false
	})

	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
