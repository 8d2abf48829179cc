package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"strings"

	"siteCMS/internal/auth"
)

// 生成 ADMIN_PASSWORD_HASH 与 JWT_SECRET，输出可直接写入 .env。
func main() {
	var (
		password  = flag.String("password", "", "管理员密码（可选，留空则随机生成）")
		secretLen = flag.Int("secret-bytes", 32, "JWT_SECRET 的随机字节数")
	)
	flag.Parse()

	pw := strings.TrimSpace(*password)
	generated := pw == ""
	if generated {
		var err error
		pw, err = randomString(18)
		if err != nil {
			log.Fatalf("generate password: %v", err)
		}
	}
	if msg, ok := auth.ValidateLoginInput(pw); !ok {
		log.Fatalf("invalid password: %s", msg)
	}

	hashed, err := auth.HashPassword(pw)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	secret, err := randomString(*secretLen)
	if err != nil {
		log.Fatalf("generate jwt secret: %v", err)
	}

	fmt.Printf("ADMIN_PASSWORD_HASH=%s\n", hashed)
	fmt.Printf("JWT_SECRET=%s\n", secret)
	if generated {
		fmt.Printf("# 初始密码: %s\n", pw)
		fmt.Printf("# 提示：该密码仅显示一次，请妥善保存。\n")
	}
}

func randomString(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 32
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
