package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/http-heartbeat/pkg/logger"
)

var _ = Describe("Logger", func() {
	var buf *bytes.Buffer

	BeforeEach(func() {
		buf = &bytes.Buffer{}
	})

	Describe("New", func() {
		DescribeTable("should respect the configured level",
			func(level string, enabled, disabled slog.Level) {
				log := logger.New(level, false, "dev", buf)
				Expect(log.Enabled(context.Background(), enabled)).To(BeTrue())
				Expect(log.Enabled(context.Background(), disabled)).To(BeFalse())
			},
			Entry("info", "info", slog.LevelInfo, slog.LevelDebug),
			Entry("debug", "debug", slog.LevelDebug, slog.LevelDebug-4),
			Entry("warn", "warn", slog.LevelWarn, slog.LevelInfo),
			Entry("error", "error", slog.LevelError, slog.LevelWarn),
			Entry("unknown defaults to info", "invalid", slog.LevelInfo, slog.LevelDebug),
			Entry("upper case", "WARN", slog.LevelWarn, slog.LevelInfo),
		)

		It("should write JSON in prod", func() {
			log := logger.New("info", false, "prod", buf)
			log.Info("Heartbeat", slog.String("endpoint", "ping"))

			var record map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &record)).To(Succeed())
			Expect(record).To(HaveKeyWithValue("msg", "Heartbeat"))
			Expect(record).To(HaveKeyWithValue("environment", "prod"))
			Expect(record).To(HaveKeyWithValue("endpoint", "ping"))
		})

		It("should write text outside prod", func() {
			log := logger.New("info", false, "dev", buf)
			log.Info("Heartbeat")

			Expect(buf.String()).To(ContainSubstring("msg=Heartbeat"))
			Expect(buf.String()).To(ContainSubstring("environment=dev"))
		})

		It("should add the source when asked", func() {
			log := logger.New("info", true, "dev", buf)
			log.Info("Heartbeat")

			Expect(buf.String()).To(ContainSubstring("source="))
		})
	})
})
