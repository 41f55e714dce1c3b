package service

import (
	"ai-chat-go/internal/apperr"
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/repository"
	"ai-chat-go/pkg/hash"
	"ai-chat-go/pkg/log"
	"ai-chat-go/pkg/token"
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

const (
	minPasswordLength = 6
	guestPrefix       = "guest-"
)

// AuthResult 是登录成功后返回给客户端的内容。
type AuthResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(ctx context.Context, username, password string) (*model.User, error)
	Login(ctx context.Context, username, password string) (*AuthResult, error)
	// Guest 创建一个访客账号并直接登录。
	Guest(ctx context.Context) (*AuthResult, error)
	GetProfile(ctx context.Context, userID uint) (*model.User, error)
}

type userService struct {
	userRepo   repository.UserRepository
	jwtManager *token.JWTManager
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, jwtManager *token.JWTManager) UserService {
	return &userService{userRepo: userRepo, jwtManager: jwtManager}
}

// Register 处理用户注册的业务逻辑。
func (s *userService) Register(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(password) < minPasswordLength {
		return nil, apperr.New(apperr.KindBadRequest, apperr.DomainAuth, "username is required and password must be at least 6 characters")
	}
	if strings.HasPrefix(username, guestPrefix) {
		return nil, apperr.New(apperr.KindBadRequest, apperr.DomainAuth, "username is reserved")
	}

	_, err := s.userRepo.FindByUsername(ctx, username)
	if err == nil {
		return nil, apperr.New(apperr.KindBadRequest, apperr.DomainAuth, "username already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}

	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{
		Username: username,
		Password: hashedPassword,
		Type:     model.UserTypeRegular,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	log.Infow("用户注册成功", "userId", user.ID, "username", username)
	return user, nil
}

// Login 处理用户登录的业务逻辑。
func (s *userService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindUnauthorized, apperr.DomainAuth, "invalid credentials")
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user.Type == model.UserTypeGuest || !hash.CheckPasswordHash(password, user.Password) {
		return nil, apperr.New(apperr.KindUnauthorized, apperr.DomainAuth, "invalid credentials")
	}
	return s.issue(user)
}

func (s *userService) Guest(ctx context.Context) (*AuthResult, error) {
	secret, err := hash.HashPassword(token.GenerateRandomString(16))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{
		Username: guestPrefix + token.GenerateRandomString(8),
		Password: secret,
		Type:     model.UserTypeGuest,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create guest: %w", err)
	}
	return s.issue(user)
}

func (s *userService) GetProfile(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindUnauthorized, apperr.DomainAuth)
	}
	return user, err
}

func (s *userService) issue(user *model.User) (*AuthResult, error) {
	tok, err := s.jwtManager.GenerateToken(user.ID, user.Username, string(user.Type))
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &AuthResult{Token: tok, User: user}, nil
}
