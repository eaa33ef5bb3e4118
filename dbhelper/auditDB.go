package dbhelper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/securebidz/apiv1/mailer"
	"github.com/securebidz/apiv1/models"
	"github.com/securebidz/apiv1/utils"
	"gorm.io/gorm"
)

type RiskAssessment struct {
	RiskScore    int      `json:"riskScore"`
	Reasons      []string `json:"reasons"`
	IsSuspicious bool     `json:"isSuspicious"`
}

// Auditor appends security events and scores recent history. It never
// fails its caller: both recording and scoring degrade to logging.
type Auditor struct {
	DB    *gorm.DB
	Clock func() time.Time
}

func (a *Auditor) now() time.Time {
	if a.Clock != nil {
		return a.Clock()
	}
	return time.Now().UTC()
}

func (a *Auditor) Record(ctx context.Context, userID string, action models.AuditAction, details models.Details, meta models.RequestMeta, riskScore int) {
	entry := models.AuditLog{
		UserID:    userRef(userID),
		Action:    action,
		Details:   details,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		RiskScore: clampScore(riskScore),
		Timestamp: a.now(),
	}
	if meta.Location != nil {
		entry.Location = *meta.Location
	}
	if err := a.DB.WithContext(ctx).Create(&entry).Error; err != nil {
		log.Errorf("request=%s recording audit event %s: %v", meta.RequestID, action, err)
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > utils.RISK_MAX_SCORE {
		return utils.RISK_MAX_SCORE
	}
	return score
}

// AssessRisk scores how unusual action looks for userID over the trailing
// RISK_WINDOW. It is advisory only and never blocks the action.
func (a *Auditor) AssessRisk(ctx context.Context, userID string, meta models.RequestMeta, action models.AuditAction) RiskAssessment {
	assessment, err := a.assessRisk(ctx, userID, meta, action)
	if err != nil {
		log.Errorf("request=%s assessing risk for %s: %v", meta.RequestID, userID, err)
		return RiskAssessment{Reasons: []string{}}
	}
	return assessment
}

func (a *Auditor) assessRisk(ctx context.Context, userID string, meta models.RequestMeta, action models.AuditAction) (RiskAssessment, error) {
	db := a.DB.WithContext(ctx)
	since := a.now().Add(-utils.RISK_WINDOW)
	score := 0
	reasons := []string{}

	var failedLogins int64
	err := db.Model(&models.AuditLog{}).
		Where("user_id = ? AND action = ? AND timestamp >= ?", userID, models.AUDIT_LOGIN_FAILED, since).
		Count(&failedLogins).Error
	if err != nil {
		return RiskAssessment{}, fmt.Errorf("counting failed logins: %w", err)
	}
	if failedLogins >= utils.RISK_FAILED_LOGIN_THRESHOLD {
		score += utils.RISK_SCORE_FAILED_LOGINS
		reasons = append(reasons, "Multiple failed login attempts")
	}

	var lastLogin models.AuditLog
	result := db.Where("user_id = ? AND action = ?", userID, models.AUDIT_LOGIN_SUCCESS).
		Order("timestamp desc").Limit(1).Find(&lastLogin)
	if result.Error != nil {
		return RiskAssessment{}, fmt.Errorf("finding last login: %w", result.Error)
	}
	hasLastLogin := result.RowsAffected > 0
	if hasLastLogin && lastLogin.IPAddress != meta.IPAddress {
		score += utils.RISK_SCORE_NEW_IP
		reasons = append(reasons, "Login from different IP address")
	}

	if strings.Contains(string(action), "BID") {
		var recentBids int64
		err := db.Model(&models.AuditLog{}).
			Where("user_id = ? AND action = ? AND timestamp >= ?", userID, models.AUDIT_BID_PLACED, since).
			Count(&recentBids).Error
		if err != nil {
			return RiskAssessment{}, fmt.Errorf("counting recent bids: %w", err)
		}
		if recentBids >= utils.RISK_BID_THRESHOLD {
			score += utils.RISK_SCORE_BID_FREQUENCY
			reasons = append(reasons, "Unusual bidding frequency")
		}
	}

	// location is best effort: without both data points it adds nothing
	if hasLastLogin && lastLogin.Location.Known() && meta.Location.Known() && !sameLocation(lastLogin.Location, *meta.Location) {
		score += utils.RISK_SCORE_LOCATION
		reasons = append(reasons, "Login from unusual location")
	}

	score = clampScore(score)
	return RiskAssessment{
		RiskScore:    score,
		Reasons:      reasons,
		IsSuspicious: score >= utils.RISK_SUSPICIOUS_THRESHOLD,
	}, nil
}

func sameLocation(a, b models.Location) bool {
	if a.Country != "" && b.Country != "" && !strings.EqualFold(a.Country, b.Country) {
		return false
	}
	if a.City != "" && b.City != "" && !strings.EqualFold(a.City, b.City) {
		return false
	}
	return true
}

type AuditFilter struct {
	UserID string
	Action models.AuditAction
	Since  time.Time
	Limit  int
}

// RecentEvents lists audit entries newest first.
func (a *Auditor) RecentEvents(ctx context.Context, filter AuditFilter) ([]models.AuditLog, error) {
	q := a.DB.WithContext(ctx).Model(&models.AuditLog{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if !filter.Since.IsZero() {
		q = q.Where("timestamp >= ?", filter.Since)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var entries []models.AuditLog
	if err := q.Order("timestamp desc").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	return entries, nil
}

// observeRisk scores the action and, when it looks suspicious, records a
// SUSPICIOUS_ACTIVITY entry and alerts the account owner.
func (s *Store) observeRisk(ctx context.Context, user *models.User, meta models.RequestMeta, action models.AuditAction) RiskAssessment {
	assessment := s.Audit.AssessRisk(ctx, user.ID, meta, action)
	if !assessment.IsSuspicious {
		return assessment
	}
	s.Audit.Record(ctx, user.ID, models.AUDIT_SUSPICIOUS_ACTIVITY, models.Details{
		"trigger":   string(action),
		"reasons":   assessment.Reasons,
		"riskScore": assessment.RiskScore,
	}, meta, assessment.RiskScore)
	s.notify(ctx, mailer.SuspiciousActivity(user.Email, assessment.RiskScore, assessment.Reasons))
	return assessment
}
