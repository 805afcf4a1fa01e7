package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/Anumulaashok/resume-builder-backend/internal/auth"
	"github.com/Anumulaashok/resume-builder-backend/internal/database"
)

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "创建首次登录需强制改密的账号",
	RunE:  runCreateUser,
}

var (
	createUserEmail string
	createUserName  string
)

func init() {
	createUserCmd.Flags().StringVar(&createUserEmail, "email", "", "登录邮箱（必填）")
	createUserCmd.Flags().StringVar(&createUserName, "name", "Administrator", "显示名称")
	if err := createUserCmd.MarkFlagRequired("email"); err != nil {
		panic(fmt.Sprintf("mark email flag as required: %v", err))
	}
	rootCmd.AddCommand(createUserCmd)
}

func runCreateUser(cmd *cobra.Command, _ []string) error {
	email := strings.ToLower(strings.TrimSpace(createUserEmail))
	if email == "" {
		return errors.New("missing required flag: --email")
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var existing database.User
	switch err := db.WithContext(ctx).Where("email = ?", email).First(&existing).Error; {
	case err == nil:
		return fmt.Errorf("user %q already exists", email)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return fmt.Errorf("query user: %w", err)
	}

	password, err := generateRandomPassword(24)
	if err != nil {
		return fmt.Errorf("generate password: %w", err)
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := database.User{
		Name:               strings.TrimSpace(createUserName),
		Email:              email,
		PasswordHash:       hashed,
		MustChangePassword: true,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "已创建账号（首次登录需强制改密）：\n")
	fmt.Fprintf(out, "邮箱: %s\n", email)
	fmt.Fprintf(out, "初始密码: %s\n", password)
	fmt.Fprintf(out, "提示：请立即登录并修改密码（该密码仅显示一次）。\n")
	return nil
}

func generateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
