//go:build integration

package steps

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mp4-mp3/cmd"
	"mp4-mp3/infrastructure/config"

	"github.com/cucumber/godog"
)

type configContext struct {
	tempDir    string
	configPath string
	cfg        *config.Config
	output     bytes.Buffer
	err        error
}

// SharedConfigContext is reset before each scenario via Before hook
var SharedConfigContext = &configContext{}

func InitializeConfigScenario(ctx *godog.ScenarioContext) {
	testCtx := SharedConfigContext

	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		tempDir, err := os.MkdirTemp("", "config-test-*")
		if err != nil {
			return c, err
		}
		testCtx.tempDir = tempDir
		testCtx.configPath = filepath.Join(tempDir, "config.yaml")
		testCtx.cfg = nil
		testCtx.output.Reset()
		testCtx.err = nil
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if testCtx.tempDir != "" {
			os.RemoveAll(testCtx.tempDir)
		}
		return c, nil
	})

	ctx.Step(`^a configuration file containing:$`, testCtx.aConfigurationFileContaining)
	ctx.Step(`^no configuration file exists$`, testCtx.noConfigurationFileExists)
	ctx.Step(`^I load the configuration$`, testCtx.iLoadTheConfiguration)
	ctx.Step(`^I run config "(list|get|set|reset)"(?: with "([^"]*)")?(?: and "([^"]*)")?$`, testCtx.iRunConfig)
	ctx.Step(`^the configuration value "([^"]*)" should be "([^"]*)"$`, testCtx.theConfigurationValueShouldBe)
	ctx.Step(`^the saved configuration value "([^"]*)" should be "([^"]*)"$`, testCtx.theSavedConfigurationValueShouldBe)
	ctx.Step(`^the config output should contain "([^"]*)"$`, testCtx.theConfigOutputShouldContain)
	ctx.Step(`^the config command should fail with "([^"]*)"$`, testCtx.theConfigCommandShouldFailWith)
}

func (c *configContext) aConfigurationFileContaining(content *godog.DocString) error {
	return os.WriteFile(c.configPath, []byte(content.Content), 0644)
}

func (c *configContext) noConfigurationFileExists() error {
	return nil
}

func (c *configContext) iLoadTheConfiguration() error {
	c.cfg, c.err = config.LoadOrDefault(c.configPath)
	if c.err != nil {
		return fmt.Errorf("failed to load config: %w", c.err)
	}
	return nil
}

func (c *configContext) iRunConfig(action, key, value string) error {
	if c.cfg == nil {
		if err := c.iLoadTheConfiguration(); err != nil {
			return err
		}
	}

	switch action {
	case "list":
		c.err = cmd.RunConfigListWithDependencies(c.cfg, c.configPath, &c.output)
	case "get":
		c.err = cmd.RunConfigGetWithDependencies(c.cfg, c.configPath, key, &c.output)
	case "set":
		c.err = cmd.RunConfigSetWithDependencies(c.cfg, c.configPath, key, value, &c.output)
	case "reset":
		c.err = cmd.RunConfigResetWithDependencies(c.cfg, c.configPath, key, &c.output)
	}
	return nil
}

func (c *configContext) theConfigurationValueShouldBe(key, expected string) error {
	if c.cfg == nil {
		return fmt.Errorf("configuration was not loaded")
	}
	value, err := config.NewConfigManager(c.cfg, c.configPath).Get(key)
	if err != nil {
		return err
	}
	if value != expected {
		return fmt.Errorf("expected %s %q, got %q", key, expected, value)
	}
	return nil
}

func (c *configContext) theSavedConfigurationValueShouldBe(key, expected string) error {
	saved, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load saved config: %w", err)
	}
	value, err := config.NewConfigManager(saved, c.configPath).Get(key)
	if err != nil {
		return err
	}
	if value != expected {
		return fmt.Errorf("expected saved %s %q, got %q", key, expected, value)
	}
	return nil
}

func (c *configContext) theConfigOutputShouldContain(text string) error {
	if c.err != nil {
		return fmt.Errorf("config command failed: %w", c.err)
	}
	if !strings.Contains(c.output.String(), text) {
		return fmt.Errorf("expected output to contain %q, got:\n%s", text, c.output.String())
	}
	return nil
}

func (c *configContext) theConfigCommandShouldFailWith(message string) error {
	if c.err == nil {
		return fmt.Errorf("expected config command to fail")
	}
	if !strings.Contains(c.err.Error(), message) {
		return fmt.Errorf("expected error containing %q, got %q", message, c.err.Error())
	}
	return nil
}
