package main

import (
	"fmt"
	"os"
	"time"

	docs "wander-self/docs/combat"
	"wander-self/internal/modules/combat"
	"wander-self/internal/pkg/notify"

	"github.com/liangdas/mqant"
	"github.com/liangdas/mqant/module"
	"github.com/liangdas/mqant/registry"
	"github.com/liangdas/mqant/registry/consul"
	"github.com/nats-io/nats.go"
)

// @title           Wander Combat API
// @version         1.0
// @description     位置 RPG 战斗服 API - 基于 mqant 微服务架构

// @host      localhost
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description 输入格式: Bearer {token}

func main() {
	fmt.Println("==============================================")
	fmt.Println("  Wander Combat Server")
	fmt.Println("  Version: 1.0.0")
	fmt.Println("==============================================")
	fmt.Println()

	// Consul address
	consulAddr := os.Getenv("CONSUL_ADDRESS")
	if consulAddr == "" {
		consulAddr = "localhost:8500"
	}
	fmt.Printf("[Main] Consul address: %s\n", consulAddr)

	// NATS address
	natsAddr := os.Getenv("NATS_ADDRESS")
	if natsAddr == "" {
		natsAddr = "localhost:4222"
	}
	fmt.Printf("[Main] NATS address: %s\n", natsAddr)

	// Connect to NATS
	nc, err := nats.Connect("nats://"+natsAddr,
		nats.MaxReconnects(10),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		fmt.Printf("[Main] Failed to connect to NATS: %v\n", err)
		return
	}
	fmt.Println("[Main] Connected to NATS successfully")
	// 设置全局通知通道（combat.settled / combat.expired 事件）
	notify.SetNatsConn(nc)

	// Configure Swagger to follow current request origin
	docs.SwaggerInfo.Host = ""
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http"}

	// Create Consul registry
	rs := consul.NewRegistry(func(options *registry.Options) {
		options.Addrs = []string{consulAddr}
	})

	// Create mqant app with configuration
	// RegisterTTL 和 RegisterInterval 在模块的 OnInit 中配置
	app := mqant.CreateApp(
		module.Configure("./configs/server/combat-server.json"),
		module.Debug(false),
		module.Nats(nc),
		module.Registry(rs),
	)

	fmt.Println("[Main] Configuration loaded")

	app.Run(
		combat.Module(),
	)
}
