package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost 是 cmd/admin 生成 ADMIN_PASSWORD_HASH 时使用的 bcrypt cost。
const PasswordCost = 12

// HashPassword 生成管理员密码的 bcrypt 哈希。
func HashPassword(password string) (string, error) {
	return hashWithCost(password, PasswordCost)
}

func hashWithCost(password string, cost int) (string, error) {
	if len(password) > MaxPasswordLength {
		return "", fmt.Errorf("hash password: longer than %d characters", MaxPasswordLength)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPasswordHash 校验密码是否匹配哈希。
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validatePasswordHash 在启动时检查配置的哈希能否被 bcrypt 解析，避免运行后才发现无法登录。
func validatePasswordHash(hash string) error {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return fmt.Errorf("admin password hash is not a bcrypt hash: %w", err)
	}
	return nil
}
