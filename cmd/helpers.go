package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/outreachlabs/formpilot/internal/browser"
	"github.com/outreachlabs/formpilot/internal/captcha"
	"github.com/outreachlabs/formpilot/internal/model"
	"github.com/outreachlabs/formpilot/internal/pipeline"
	"github.com/outreachlabs/formpilot/internal/processor"
	"github.com/outreachlabs/formpilot/internal/repository"
)

// profileFile is the on-disk shape of a sender profile.
type profileFile struct {
	FirstName     string `mapstructure:"first_name"`
	LastName      string `mapstructure:"last_name"`
	Email         string `mapstructure:"email"`
	Phone         string `mapstructure:"phone"`
	Company       string `mapstructure:"company"`
	JobTitle      string `mapstructure:"job_title"`
	Subject       string `mapstructure:"subject"`
	Message       string `mapstructure:"message"`
	Website       string `mapstructure:"website"`
	CaptchaAPIKey string `mapstructure:"captcha_api_key"`
}

// loadProfile reads the sender profile from a YAML file.
func loadProfile(path string) (model.SenderProfile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return model.SenderProfile{}, fmt.Errorf("read profile file: %w", err)
	}
	var pf profileFile
	if err := v.Unmarshal(&pf); err != nil {
		return model.SenderProfile{}, fmt.Errorf("parse profile file: %w", err)
	}
	p := model.SenderProfile{
		FirstName:     pf.FirstName,
		LastName:      pf.LastName,
		Email:         pf.Email,
		Phone:         pf.Phone,
		Company:       pf.Company,
		JobTitle:      pf.JobTitle,
		Subject:       pf.Subject,
		Message:       pf.Message,
		Website:       pf.Website,
		CaptchaAPIKey: pf.CaptchaAPIKey,
	}
	if p.Email == "" || p.Message == "" {
		return model.SenderProfile{}, fmt.Errorf("profile must set at least email and message")
	}
	return p, nil
}

// loadTargets reads one target URL per line, skipping blanks and comments.
func loadTargets(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets file: %w", err)
	}
	defer f.Close()

	var targets []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("targets file %q contains no URLs", path)
	}
	return targets, nil
}

// connectDB opens the pool and makes sure the schema exists.
func connectDB(ctx context.Context) (*pgxpool.Pool, error) {
	if appCfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is not configured (set FORMPILOT_DATABASE_URL)")
	}
	pool, err := pgxpool.New(ctx, appCfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := repository.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// buildProcessor wires the browser, solver, pipeline and repositories into a
// campaign processor. The caller owns the returned manager's shutdown.
func buildProcessor(pool *pgxpool.Pool, logger *zap.Logger) (*processor.Processor, *browser.Manager) {
	manager := browser.NewManager(appCfg, logger)
	solver := captcha.NewSolver(appCfg.Captcha, logger)
	executor := pipeline.NewExecutor(appCfg, solver, logger)

	sessions := func(ctx context.Context) (processor.Session, error) {
		return manager.NewSession(ctx)
	}
	proc := processor.New(appCfg,
		repository.NewCampaignRepository(pool),
		repository.NewSubmissionRepository(pool),
		sessions, executor, logger)
	return proc, manager
}
