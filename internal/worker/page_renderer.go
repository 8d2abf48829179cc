package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodScreenshotter 用无头 Chromium 渲染发布出的 HTML 并截取整页 PNG。
type RodScreenshotter struct {
	logger  *slog.Logger
	width   int
	height  int
	timeout time.Duration
}

// NewRodScreenshotter 构造截图器，视口默认为 1280x800。
func NewRodScreenshotter(logger *slog.Logger) *RodScreenshotter {
	return &RodScreenshotter{logger: logger, width: 1280, height: 800, timeout: 60 * time.Second}
}

// Capture 加载 HTML 并返回整页截图。每次调用启动独立的浏览器进程。
func (s *RodScreenshotter) Capture(ctx context.Context, html []byte) (_ []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	launch := launcher.New().
		Headless(true).
		NoSandbox(true).
		Context(ctx)
	defer launch.Cleanup()

	if path, ok := launcher.LookPath(); ok {
		launch = launch.Bin(path)
	}

	browserURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	browser := rod.New().ControlURL(browserURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer func() {
		_ = browser.Close()
	}()

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() {
		_ = page.Close()
	}()

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.width,
		Height:            s.height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	if err := page.SetDocumentContent(string(html)); err != nil {
		return nil, fmt.Errorf("set document content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	// 图片与视频封面可能还在加载，最多再等几秒。
	if err := page.Timeout(5 * time.Second).WaitIdle(5 * time.Second); err != nil {
		s.logger.Warn("wait page idle failed, continue", slog.Any("error", err))
	}

	return capturePreparedScreenshot(page)
}

func capturePreparedScreenshot(page *rod.Page) ([]byte, error) {
	element, err := page.Timeout(2 * time.Second).Element(".homepage-canvas")
	if err == nil {
		if data, shotErr := element.Screenshot(proto.PageCaptureScreenshotFormatPng, 0); shotErr == nil {
			return data, nil
		}
	}

	data, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("page screenshot: %w", err)
	}
	return data, nil
}
