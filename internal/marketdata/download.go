package marketdata

import (
	"context"
	"io"
	"time"

	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// binance returns at most this many klines per request
const downloadPageSize = 1500

// DownloadRequest describes bars to fetch for a replay file.
type DownloadRequest struct {
	Symbols  []string
	Duration time.Duration
	Start    time.Time
	End      time.Time
	Output   string
	// Progress receives a progress bar. Nil disables it.
	Progress io.Writer
}

// Downloader fetches historical futures bars into a Parquet replay file.
type Downloader struct {
	streams BinanceStreams
	logger  *logger.Logger
}

// NewDownloader creates a downloader on the given streams.
func NewDownloader(streams BinanceStreams, log *logger.Logger) *Downloader {
	if log == nil {
		log = logger.NewNop()
	}

	return &Downloader{streams: streams, logger: log.Named("downloader")}
}

// NewBinanceDownloader creates a downloader on the public futures endpoints.
func NewBinanceDownloader(log *logger.Logger) *Downloader {
	return NewDownloader(NewBinanceSource(false, log).streams, log)
}

// Download pages through the requested range and writes every bar. It returns the output path.
func (d *Downloader) Download(ctx context.Context, req DownloadRequest) (string, error) {
	if len(req.Symbols) == 0 || req.Output == "" || !req.End.After(req.Start) {
		return "", errors.New(errors.ErrCodeInvalidParameter, "download needs symbols, an output path and a non-empty range")
	}

	interval, err := binanceInterval(req.Duration)
	if err != nil {
		return "", err
	}

	writer := NewBarWriter(req.Output)
	if err := writer.Initialize(); err != nil {
		return "", err
	}
	defer writer.Close()

	var bar *progressbar.ProgressBar
	if req.Progress != nil {
		bar = progressbar.NewOptions64(req.End.Sub(req.Start).Milliseconds()*int64(len(req.Symbols)),
			progressbar.OptionSetWriter(req.Progress),
			progressbar.OptionSetDescription("Downloading "+interval+" bars"),
		)
		defer bar.Finish()
	}

	for _, symbol := range req.Symbols {
		cursor := req.Start.UnixMilli()
		end := req.End.UnixMilli()

		for cursor < end {
			klines, err := d.streams.Klines(ctx, symbol, interval, downloadPageSize, cursor, end-1)
			if err != nil {
				return "", errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to fetch %s klines of %s", interval, symbol)
			}

			for _, k := range klines {
				kline, err := parseKline(symbol, req.Duration, k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
				if err != nil {
					return "", err
				}

				if err := writer.Write(kline); err != nil {
					return "", err
				}
			}

			next := end
			if len(klines) == downloadPageSize {
				next = klines[len(klines)-1].OpenTime + req.Duration.Milliseconds()
			}

			if bar != nil {
				bar.Add64(next - cursor)
			}

			cursor = next
		}

		d.logger.Info("Downloaded bars", zap.String("symbol", symbol), zap.String("interval", interval))
	}

	path, err := writer.Finalize()
	if err != nil {
		return "", err
	}

	d.logger.Info("Replay file written", zap.String("path", path), zap.Int("bars", writer.Count()))

	return path, nil
}
