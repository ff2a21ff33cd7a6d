package service

import (
	"net/mail"
	"strings"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/config"
	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/logger"
	"github.com/Juddanxavier/track-sub003/internal/models"
	"github.com/Juddanxavier/track-sub003/internal/queue"
	"github.com/Juddanxavier/track-sub003/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserService 客户账号服务。客户由管理员从运单侧邀请创建，
// 完成注册前仅持有一次性注册令牌。
type UserService struct {
	userRepo       repository.UserRepository
	shipmentRepo   repository.ShipmentRepository
	eventSvc       *ShipmentEventService
	queueClient    *queue.Client
	signupCfg      *config.SignupConfig
	passwordPolicy config.PasswordPolicyConfig
}

// NewUserService 创建客户服务
func NewUserService(
	userRepo repository.UserRepository,
	shipmentRepo repository.ShipmentRepository,
	eventSvc *ShipmentEventService,
	queueClient *queue.Client,
	signupCfg *config.SignupConfig,
	passwordPolicy config.PasswordPolicyConfig,
) *UserService {
	return &UserService{
		userRepo:       userRepo,
		shipmentRepo:   shipmentRepo,
		eventSvc:       eventSvc,
		queueClient:    queueClient,
		signupCfg:      signupCfg,
		passwordPolicy: passwordPolicy,
	}
}

// AssignUserInput 把客户关联到运单的入参
type AssignUserInput struct {
	ShipmentID  uint
	Email       string
	DisplayName string
	Phone       string
	AdminID     uint
}

// AssignUserResult 关联结果
type AssignUserResult struct {
	User       *models.User     `json:"user"`
	Shipment   *models.Shipment `json:"shipment"`
	Invited    bool             `json:"invited"`     // 是否为本次新建的邀请账号
	SignupSent bool             `json:"signup_sent"` // 是否触发了注册邀请邮件
}

// CompleteSignupInput 完成注册入参
type CompleteSignupInput struct {
	Token       string
	Password    string
	DisplayName string
	Phone       string
}

// GetUser 获取客户
func (s *UserService) GetUser(id uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(id)
	if err != nil {
		return nil, ErrUserFetchFailed
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ListUsers 分页查询客户
func (s *UserService) ListUsers(filter repository.UserListFilter) ([]models.User, int64, error) {
	filter.Keyword = strings.TrimSpace(filter.Keyword)
	filter.Status = strings.ToLower(strings.TrimSpace(filter.Status))
	users, total, err := s.userRepo.List(filter)
	if err != nil {
		return nil, 0, ErrUserFetchFailed
	}
	return users, total, nil
}

// GetUserShipments 获取客户名下运单
func (s *UserService) GetUserShipments(userID uint) ([]models.Shipment, error) {
	if _, err := s.GetUser(userID); err != nil {
		return nil, err
	}
	shipments, err := s.shipmentRepo.ListByUser(userID)
	if err != nil {
		return nil, ErrShipmentFetchFailed
	}
	return shipments, nil
}

// DisableUser 停用客户账号
func (s *UserService) DisableUser(id uint) (*models.User, error) {
	user, err := s.GetUser(id)
	if err != nil {
		return nil, err
	}
	if user.Status == constants.UserStatusDisabled {
		return user, nil
	}
	user.Status = constants.UserStatusDisabled
	user.SignupToken = ""
	user.SignupTokenExpiresAt = nil
	user.UpdatedAt = time.Now()
	if err := s.userRepo.Update(user); err != nil {
		return nil, ErrUserUpdateFailed
	}
	return user, nil
}

// AssignUserToShipment 把客户关联到运单。已激活客户直接绑定；
// 邮箱未注册时创建邀请账号、签发注册令牌并异步发送邀请邮件。
func (s *UserService) AssignUserToShipment(input AssignUserInput) (*AssignUserResult, error) {
	email, err := normalizeUserEmail(input.Email)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return nil, ErrUserFetchFailed
	}
	if user != nil && user.Status == constants.UserStatusDisabled {
		return nil, ErrUserDisabled
	}

	result := &AssignUserResult{}
	now := time.Now()
	err = s.shipmentRepo.Transaction(func(tx *gorm.DB) error {
		shipmentRepo := s.shipmentRepo.WithTx(tx)
		userRepo := s.userRepo.WithTx(tx)

		shipment, err := shipmentRepo.GetByIDForUpdate(input.ShipmentID)
		if err != nil {
			return ErrShipmentFetchFailed
		}
		if shipment == nil {
			return ErrShipmentNotFound
		}

		assignmentStatus := constants.UserAssignmentAssigned
		if user == nil {
			user = &models.User{
				Email:       email,
				DisplayName: strings.TrimSpace(input.DisplayName),
				Phone:       strings.TrimSpace(input.Phone),
				Status:      constants.UserStatusInvited,
				CreatedBy:   input.AdminID,
			}
			s.issueSignupToken(user, now)
			if err := userRepo.Create(user); err != nil {
				return ErrUserCreateFailed
			}
			result.Invited = true
			result.SignupSent = true
			assignmentStatus = constants.UserAssignmentSignupSent
		} else if user.Status == constants.UserStatusInvited {
			// 邀请未完成，刷新过期令牌后重发
			if !user.SignupTokenValid(now) {
				s.issueSignupToken(user, now)
			}
			user.UpdatedAt = now
			if err := userRepo.Update(user); err != nil {
				return ErrUserUpdateFailed
			}
			result.SignupSent = true
			assignmentStatus = constants.UserAssignmentSignupSent
		}

		if err := shipmentRepo.UpdateFields(shipment.ID, map[string]interface{}{
			"user_id":                user.ID,
			"user_assignment_status": assignmentStatus,
			"updated_at":             now,
		}); err != nil {
			return ErrShipmentUpdateFailed
		}

		if _, _, err := s.eventSvc.AddEventTx(tx, AddShipmentEventInput{
			ShipmentID:  shipment.ID,
			EventType:   constants.EventTypeUserAssigned,
			Source:      constants.EventSourceManual,
			SourceID:    formatAdminSourceID(input.AdminID),
			Description: "customer account linked to shipment",
			EventTime:   now,
			Metadata: models.JSON{
				"user_email":        email,
				"assignment_status": assignmentStatus,
			},
			CreatedBy: input.AdminID,
		}); err != nil {
			return err
		}

		shipment.UserID = &user.ID
		shipment.UserAssignmentStatus = assignmentStatus
		shipment.UpdatedAt = now
		result.User = user
		result.Shipment = shipment
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.SignupSent {
		s.enqueueSignupEmail(result.User.ID, result.Shipment.ID)
	}
	return result, nil
}

// CompleteSignup 客户凭注册令牌完成注册并激活账号，
// 名下处于 signup_sent 的运单翻转为 signup_completed。
func (s *UserService) CompleteSignup(input CompleteSignupInput) (*models.User, error) {
	token := strings.TrimSpace(input.Token)
	if token == "" {
		return nil, ErrSignupTokenInvalid
	}
	user, err := s.userRepo.GetBySignupToken(token)
	if err != nil {
		return nil, ErrUserFetchFailed
	}
	if user == nil || user.Status != constants.UserStatusInvited {
		return nil, ErrSignupTokenInvalid
	}
	now := time.Now()
	if !user.SignupTokenValid(now) {
		return nil, ErrSignupTokenExpired
	}
	if err := validatePassword(s.passwordPolicy, input.Password); err != nil {
		return nil, err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, ErrUserUpdateFailed
	}

	err = s.userRepo.Transaction(func(tx *gorm.DB) error {
		userRepo := s.userRepo.WithTx(tx)
		shipmentRepo := s.shipmentRepo.WithTx(tx)

		user.PasswordHash = string(hashed)
		user.Status = constants.UserStatusActive
		user.SignupToken = ""
		user.SignupTokenExpiresAt = nil
		user.SignupCompletedAt = &now
		user.UpdatedAt = now
		if name := strings.TrimSpace(input.DisplayName); name != "" {
			user.DisplayName = name
		}
		if phone := strings.TrimSpace(input.Phone); phone != "" {
			user.Phone = phone
		}
		if err := userRepo.Update(user); err != nil {
			return ErrUserUpdateFailed
		}

		shipments, err := shipmentRepo.ListByUser(user.ID)
		if err != nil {
			return ErrShipmentFetchFailed
		}
		for i := range shipments {
			shipment := &shipments[i]
			if shipment.UserAssignmentStatus != constants.UserAssignmentSignupSent {
				continue
			}
			if err := shipmentRepo.UpdateFields(shipment.ID, map[string]interface{}{
				"user_assignment_status": constants.UserAssignmentSignupCompleted,
				"updated_at":             now,
			}); err != nil {
				return ErrShipmentUpdateFailed
			}
			if _, _, err := s.eventSvc.AddEventTx(tx, AddShipmentEventInput{
				ShipmentID:  shipment.ID,
				EventType:   constants.EventTypeUserAssigned,
				Source:      constants.EventSourceUserAction,
				SourceID:    formatUserSourceID(user.ID),
				Description: "customer completed signup",
				EventTime:   now,
				Metadata: models.JSON{
					"user_email":        user.Email,
					"assignment_status": constants.UserAssignmentSignupCompleted,
				},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ExpireStaleSignups 清理过期注册邀请：作废令牌，
// 并把相关运单的关联状态回退到 unassigned。返回处理的账号数。
func (s *UserService) ExpireStaleSignups(limit int) (int, error) {
	now := time.Now()
	users, err := s.userRepo.ListStaleSignupUsers(now, limit)
	if err != nil {
		return 0, ErrUserFetchFailed
	}

	expired := 0
	for i := range users {
		user := &users[i]
		err := s.userRepo.Transaction(func(tx *gorm.DB) error {
			userRepo := s.userRepo.WithTx(tx)
			shipmentRepo := s.shipmentRepo.WithTx(tx)

			user.SignupToken = ""
			user.SignupTokenExpiresAt = nil
			user.UpdatedAt = now
			if err := userRepo.Update(user); err != nil {
				return ErrUserUpdateFailed
			}

			shipments, err := shipmentRepo.ListByUser(user.ID)
			if err != nil {
				return ErrShipmentFetchFailed
			}
			for j := range shipments {
				shipment := &shipments[j]
				if shipment.UserAssignmentStatus != constants.UserAssignmentSignupSent {
					continue
				}
				if err := shipmentRepo.UpdateFields(shipment.ID, map[string]interface{}{
					"user_assignment_status": constants.UserAssignmentUnassigned,
					"updated_at":             now,
				}); err != nil {
					return ErrShipmentUpdateFailed
				}
				if _, _, err := s.eventSvc.AddEventTx(tx, AddShipmentEventInput{
					ShipmentID:  shipment.ID,
					EventType:   constants.EventTypeUserAssigned,
					Source:      constants.EventSourceManual,
					SourceID:    "system:cleanup",
					Description: "signup invitation expired, customer link reverted",
					EventTime:   now,
					Metadata: models.JSON{
						"user_email":        user.Email,
						"assignment_status": constants.UserAssignmentUnassigned,
					},
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			logger.Warnw("signup_expire_failed",
				"user_id", user.ID,
				"error", err,
			)
			continue
		}
		expired++
	}
	return expired, nil
}

// issueSignupToken 签发一次性注册令牌
func (s *UserService) issueSignupToken(user *models.User, now time.Time) {
	ttl := 72
	if s.signupCfg != nil && s.signupCfg.TokenTTLHours > 0 {
		ttl = s.signupCfg.TokenTTLHours
	}
	expiresAt := now.Add(time.Duration(ttl) * time.Hour)
	user.SignupToken = uuid.NewString()
	user.SignupTokenExpiresAt = &expiresAt
}

func (s *UserService) enqueueSignupEmail(userID, shipmentID uint) {
	if s.queueClient == nil || !s.queueClient.Enabled() {
		return
	}
	if err := s.queueClient.EnqueueSignupEmail(queue.SignupEmailPayload{
		UserID:     userID,
		ShipmentID: shipmentID,
	}); err != nil {
		logger.Warnw("signup_email_enqueue_failed",
			"user_id", userID,
			"shipment_id", shipmentID,
			"error", err,
		)
	}
}

func normalizeUserEmail(raw string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return "", ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(normalized); err != nil {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}
