package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/researchai/research-bridge/internal/admission"
	"github.com/researchai/research-bridge/internal/config"
	"github.com/researchai/research-bridge/internal/handlers"
	"github.com/researchai/research-bridge/internal/ledger"
	"github.com/researchai/research-bridge/internal/logger"
	"github.com/researchai/research-bridge/internal/middleware"
	"github.com/researchai/research-bridge/internal/orchestrator"
	"github.com/researchai/research-bridge/internal/search"
	"github.com/researchai/research-bridge/internal/tools"
	"github.com/researchai/research-bridge/internal/usagelog"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or defaults")
	}

	envCfg := config.NewEnvConfig()

	// Refuse to start with the placeholder access key outside development
	if envCfg.AccessKey == "your-access-key" {
		if os.Getenv("ALLOW_INSECURE_DEFAULT_KEY") == "true" && envCfg.IsDevelopment() {
			log.Println("⚠️ Warning: using the default ACCESS_KEY, local development only")
		} else {
			log.Fatal("🚨 Security error: the default ACCESS_KEY is not allowed. Set a strong key in .env, or set ALLOW_INSECURE_DEFAULT_KEY=true in development")
		}
	}

	logCfg := &logger.Config{
		LogDir:  envCfg.LogDir,
		LogFile: envCfg.LogFile,
		MaxAge:  envCfg.LogMaxAge,
		Console: envCfg.LogToConsole,
	}
	if err := logger.Setup(logCfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	pricingManager, err := config.NewPricingManager(".config/pricing.json")
	if err != nil {
		log.Fatalf("Failed to initialize pricing manager: %v", err)
	}
	defer pricingManager.Close()

	usageLog, err := usagelog.NewManager(envCfg.UsageLogPath)
	if err != nil {
		log.Printf("⚠️ Usage log unavailable: %v (analytics disabled)", err)
	} else {
		defer usageLog.Close()
	}

	var mirror ledger.EventMirror
	if usageLog != nil {
		mirror = usageLog
	}
	ledgerClient := ledger.NewClient(ledger.Options{
		BaseURL:            envCfg.LedgerBaseURL,
		APIKey:             envCfg.LedgerAPIKey,
		Timeout:            time.Duration(envCfg.LedgerTimeoutMS) * time.Millisecond,
		MaxRetries:         envCfg.LedgerMaxRetries,
		DefaultCreditLimit: envCfg.DefaultCreditLimit,
		Mirror:             mirror,
	})
	admitter := admission.NewController(ledgerClient)
	log.Printf("✅ Ledger client ready: %s", envCfg.LedgerBaseURL)

	searchClient := search.NewClient(search.Options{
		Endpoint:  envCfg.SearchEndpoint,
		IndexName: envCfg.SearchIndexName,
		APIKey:    envCfg.SearchAPIKey,
		TopN:      envCfg.SearchTopN,
	})

	invoker := tools.NewInvoker(searchClient, admitter, pricingManager.Get, envCfg.SearchTopN)

	provider := orchestrator.NewHTTPProvider(orchestrator.ProviderOptions{
		BaseURL:      envCfg.LLMBaseURL,
		APIKey:       envCfg.LLMAPIKey,
		Model:        envCfg.LLMModel,
		SystemPrompt: orchestrator.SystemPrompt(),
		MaxTokens:    envCfg.LLMMaxTokens,
		Temperature:  envCfg.LLMTemperature,
		Timeout:      time.Duration(envCfg.LLMTimeoutMS) * time.Millisecond,
	})
	orch := orchestrator.New(provider, invoker, envCfg.MaxToolRounds)
	log.Printf("✅ Orchestrator ready: model=%s, maxToolRounds=%d", envCfg.LLMModel, envCfg.MaxToolRounds)

	if envCfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	if len(envCfg.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(envCfg.TrustedProxies); err != nil {
			log.Fatalf("Failed to set trusted proxies: %v", err)
		}
	} else {
		r.SetTrustedProxies(nil)
	}

	r.Use(middleware.SecurityHeadersMiddleware())
	if envCfg.EnableCORS {
		r.Use(middleware.CORSMiddleware(envCfg))
	}
	r.Use(middleware.AccessKeyMiddleware(envCfg))

	r.GET(envCfg.HealthCheckPath, handlers.HealthCheck())
	r.GET("/api/health", handlers.HealthCheckDetailed(envCfg))

	r.POST("/v1/chat", handlers.ChatHandler(admitter, orch, pricingManager))
	r.POST("/api/search", handlers.SearchHandler(searchClient))
	r.GET("/api/billing", handlers.BillingStatusHandler(ledgerClient, pricingManager))
	r.POST("/api/billing", handlers.RecordUsageHandler(admitter, pricingManager))
	r.POST("/api/billing/webhook", handlers.WebhookHandler(envCfg))
	if usageLog != nil {
		r.GET("/api/usage", handlers.UsageHandler(ledgerClient, usageLog))
	}

	addr := fmt.Sprintf(":%d", envCfg.Port)
	log.Printf("🚀 research-bridge listening on %s (env: %s)", addr, envCfg.Env)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
