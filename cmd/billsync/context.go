package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"billsync/internal/config"
	"billsync/internal/services/moneyforward"
	"billsync/internal/services/notion"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) notionClient() (*notion.Client, *config.Config, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	return notion.NewClient(cfg), cfg, nil
}

func (c *commandContext) billingClient() (*moneyforward.Client, *config.Config, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ValidateMoneyForward(); err != nil {
		return nil, nil, err
	}
	store := moneyforward.NewFileTokenStore(cfg.TokenPath())
	tokens := moneyforward.NewTokenManager(cfg, store)
	return moneyforward.NewClient(cfg, tokens), cfg, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
