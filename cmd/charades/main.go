package main

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/CharadesAI/charadesai-sub000/internal/api"
	"github.com/CharadesAI/charadesai-sub000/internal/chat"
	"github.com/CharadesAI/charadesai-sub000/internal/config"
	"github.com/CharadesAI/charadesai-sub000/internal/i18n"
	"github.com/CharadesAI/charadesai-sub000/internal/middleware"
	"github.com/CharadesAI/charadesai-sub000/internal/services/cache"
	"github.com/CharadesAI/charadesai-sub000/internal/services/inference"
	"github.com/CharadesAI/charadesai-sub000/internal/session"
	"github.com/CharadesAI/charadesai-sub000/pkg/logger"
	"github.com/CharadesAI/charadesai-sub000/pkg/markdown"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	lang := flag.String("lang", "", "Override UI language")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		// It's okay if .env doesn't exist
		fmt.Fprintf(os.Stderr, "Warning: .env file not found: %v\n", err)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *lang != "" {
		cfg.I18n.DefaultLanguage = *lang
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Initialize session store
	store, err := session.NewStore(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize session store")
	}

	// Initialize API client and session
	client := api.NewClient(&cfg.API, store, log)
	sess := session.NewSession(store, client, log)

	// Initialize i18n
	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	// Initialize metrics
	metrics := middleware.NewMetrics()

	// Start metrics server if enabled
	if cfg.Monitoring.Metrics.Enabled {
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	// Cancel the root context on SIGINT/SIGTERM so an active poll loop is
	// torn down cleanly.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutdown signal received")
		cancel()
	}()

	// Restore persisted session state before any command runs
	sess.Load(ctx)

	app := &app{
		cfg:       cfg,
		log:       log,
		store:     store,
		client:    client,
		session:   sess,
		localizer: localizer,
		metrics:   metrics,
		lang:      cfg.I18n.DefaultLanguage,
	}

	command := "chat"
	if args := flag.Args(); len(args) > 0 {
		command = args[0]
	}

	if err := app.run(ctx, command, flag.Args()); err != nil {
		if ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

type app struct {
	cfg       *config.Config
	log       *logrus.Logger
	store     session.Store
	client    *api.Client
	session   *session.Session
	localizer *i18n.Localizer
	metrics   *middleware.Metrics
	lang      string
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "chat":
		return a.runChat(ctx)
	case "login":
		return a.runLogin(ctx)
	case "register":
		return a.runRegister(ctx)
	case "logout":
		a.session.Logout(ctx)
		fmt.Println(a.localizer.Get(a.lang, i18n.MsgLogoutDone, nil))
		return nil
	case "whoami":
		return a.runWhoami()
	case "oauth":
		if len(args) < 2 {
			return fmt.Errorf("usage: charades oauth <google|github>")
		}
		fmt.Println(a.client.OAuthRedirectURL(args[1]))
		return nil
	case "contact":
		return a.runContact(ctx)
	case "pin":
		return a.runPin(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func (a *app) runLogin(ctx context.Context) error {
	reader := bufio.NewReader(os.Stdin)
	email, err := prompt(reader, "Email: ")
	if err != nil {
		return err
	}
	password, err := prompt(reader, "Password: ")
	if err != nil {
		return err
	}

	token, user, err := a.client.Login(ctx, email, hashPassword(password))
	if err != nil {
		return err
	}
	a.session.Login(ctx, token, user)

	username := email
	if user != nil && user.Username != "" {
		username = user.Username
	}
	fmt.Println(a.localizer.Get(a.lang, i18n.MsgLoginSuccess, map[string]interface{}{"Username": username}))
	return nil
}

func (a *app) runRegister(ctx context.Context) error {
	reader := bufio.NewReader(os.Stdin)
	req := api.RegisterRequest{CaptchaToken: a.cfg.Auth.CaptchaSiteKey}
	var err error
	if req.Username, err = prompt(reader, "Username: "); err != nil {
		return err
	}
	if req.FirstName, err = prompt(reader, "First name: "); err != nil {
		return err
	}
	if req.LastName, err = prompt(reader, "Last name: "); err != nil {
		return err
	}
	if req.Email, err = prompt(reader, "Email: "); err != nil {
		return err
	}
	password, err := prompt(reader, "Password: ")
	if err != nil {
		return err
	}
	confirmation, err := prompt(reader, "Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirmation {
		return fmt.Errorf("passwords do not match")
	}
	req.PasswordHash = hashPassword(password)
	req.PasswordHashConfirmation = req.PasswordHash

	token, user, err := a.client.Register(ctx, req)
	if err != nil {
		return err
	}
	a.session.Login(ctx, token, user)

	fmt.Println(a.localizer.Get(a.lang, i18n.MsgRegisterSuccess, map[string]interface{}{"Username": req.Username}))
	return nil
}

func (a *app) runWhoami() error {
	if a.session.Loading() {
		fmt.Println(a.localizer.Get(a.lang, i18n.MsgSessionLoading, nil))
		return nil
	}
	if !a.session.Authenticated() {
		fmt.Println(a.localizer.Get(a.lang, i18n.MsgNotLoggedIn, nil))
		return nil
	}
	user := a.session.User()
	fmt.Printf("%s <%s>\n", user.Username, user.Email)
	return nil
}

func (a *app) runContact(ctx context.Context) error {
	reader := bufio.NewReader(os.Stdin)
	name, err := prompt(reader, "Name: ")
	if err != nil {
		return err
	}
	email, err := prompt(reader, "Email: ")
	if err != nil {
		return err
	}
	message, err := prompt(reader, "Message: ")
	if err != nil {
		return err
	}
	if err := a.client.Contact(ctx, name, email, message); err != nil {
		return err
	}
	fmt.Println(a.localizer.Get(a.lang, i18n.MsgContactSent, nil))
	return nil
}

func (a *app) runPin(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: charades pin <latitude> <longitude> [label]")
	}
	latitude, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid latitude: %w", err)
	}
	longitude, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid longitude: %w", err)
	}
	label := ""
	if len(args) > 2 {
		label = strings.Join(args[2:], " ")
	}
	return a.client.MapPin(ctx, latitude, longitude, label)
}

func (a *app) runChat(ctx context.Context) error {
	cacheService := cache.NewCache(a.cfg, a.log)
	generator := inference.NewClient(&a.cfg.Chat, a.client, cacheService, a.metrics, a.log)
	rateLimiter := middleware.NewRateLimiter(a.cfg, a.log)

	username := ""
	if user := a.session.User(); user != nil {
		username = user.Username
	}

	conversation := chat.NewConversation(chat.Options{
		Generator: generator,
		Store:     a.store,
		Limiter:   rateLimiter,
		Metrics:   a.metrics,
		Localizer: a.localizer,
		Logger:    a.log,
		Language:  a.lang,
		Preamble:  a.cfg.Chat.ContextPreamble,
		User:      username,
	})

	fmt.Println(a.localizer.Get(a.lang, i18n.MsgChatWelcome, nil))

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			conversation.Reset()
			continue
		}

		reply, err := conversation.Send(ctx, line)
		if err != nil {
			switch err {
			case chat.ErrRateLimited:
				fmt.Println(a.localizer.Get(a.lang, i18n.MsgRateLimitExceeded, nil))
			case chat.ErrBusy:
				fmt.Println(a.localizer.Get(a.lang, i18n.MsgChatBusy, nil))
			default:
				a.log.WithError(err).Warn("Submission rejected")
				fmt.Println(err)
			}
			continue
		}

		fmt.Println(markdown.ToTerminalText(reply))
	}
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// hashPassword produces the password_hash form the API expects; raw
// passwords never leave the client.
func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
