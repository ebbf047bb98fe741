// 将指定邮箱的用户提升为管理员，可选清空某个测验的答题记录
//
// 用法: go run scripts/setup_admin.go -email admin@example.com [-role admin] [-purge <quizId>]

package main

import (
	"context"
	"flag"
	"log"
	"os"

	"quiz_backend/internal/config"
	"quiz_backend/internal/event"
	"quiz_backend/internal/model"
	"quiz_backend/internal/repository"
	"quiz_backend/internal/repository/mongostore"
	"quiz_backend/internal/service"
	"quiz_backend/pkg/database"

	"gopkg.in/yaml.v3"
)

// 脚本只需要数据库配置
type scriptConfig struct {
	Server   config.ServerConfig   `yaml:"server"`
	Database config.DatabaseConfig `yaml:"database"`
}

func main() {
	configFile := flag.String("config", "configs/config.yaml", "配置文件路径")
	email := flag.String("email", "", "用户邮箱")
	role := flag.String("role", string(model.Admin), "目标角色 student|instructor|admin")
	purge := flag.String("purge", "", "需要清空答题记录的测验ID")
	flag.Parse()

	if *email == "" && *purge == "" {
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(*configFile)
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	var cfg scriptConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}

	ctx := context.Background()

	var (
		quizzes  repository.QuizStore
		attempts repository.AttemptStore
		users    repository.UserStore
	)
	if cfg.Database.Driver == config.DriverMongo {
		client, db, err := database.InitMongo(ctx, &cfg.Database)
		if err != nil {
			log.Fatalf("数据库连接失败: %v", err)
		}
		defer client.Disconnect(ctx)
		stores := mongostore.New(db)
		quizzes, attempts, users = stores.Quizzes, stores.Attempts, stores.Users
	} else {
		db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
		if err != nil {
			log.Fatalf("数据库连接失败: %v", err)
		}
		quizzes = repository.NewQuizRepository(db)
		attempts = repository.NewAttemptRepository(db)
		users = repository.NewUserRepository(db)
	}

	if *email != "" {
		userService := service.NewUserService(users)
		user, err := userService.PromoteByEmail(ctx, *email, model.UserRole(*role))
		if err != nil {
			log.Fatalf("设置角色失败: %v", err)
		}
		log.Printf("用户 %s (%s) 已设置为 %s", user.Email, user.ID, user.Role)
	}

	if *purge != "" {
		publisher, err := event.NewEventPublisher(os.Getenv("RABBITMQ_URI"), "quiz.events")
		if err != nil {
			log.Printf("事件发布不可用，跳过: %v", err)
			publisher, _ = event.NewEventPublisher("", "quiz.events")
		}
		defer publisher.Close()

		quizService := service.NewQuizService(quizzes, attempts, nil, publisher, 0)
		deleted, err := quizService.PurgeAttempts(ctx, *purge)
		if err != nil {
			log.Fatalf("清空答题记录失败: %v", err)
		}
		log.Printf("测验 %s 已删除 %d 条答题记录", *purge, deleted)
	}

	log.Println("完成！")
}
