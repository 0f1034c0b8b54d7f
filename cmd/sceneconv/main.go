package main

import (
	"flag"
	"fmt"
	"os"

	sceneio "github.com/flywave/go-sceneio"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	var (
		configPath = flag.String("config", "", "yaml config file")
		input      = flag.String("i", "", "input scene file")
		output     = flag.String("o", "", "output scene file")
		format     = flag.String("format", "", "output format id (default: by extension)")
		preset     = flag.String("preset", "", "correction preset (none, blender)")
		overwrite  = flag.Bool("overwrite", false, "overwrite the output file")
	)
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *input != "" {
		cfg.Input = *input
	}
	if *output != "" {
		cfg.Output = *output
	}
	if *format != "" {
		cfg.Format = *format
	}
	if *preset != "" {
		cfg.Preset = *preset
		cfg.Correction = nil
	}
	if *overwrite {
		cfg.Overwrite = true
	}
	if cfg.Input == "" || cfg.Output == "" {
		fmt.Fprintln(os.Stderr, "usage: sceneconv -i input -o output [-format id] [-preset name]")
		os.Exit(2)
	}

	logger := newLogger(cfg.Log)
	defer logger.Sync()
	sceneio.SetLogger(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("conversion failed", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(cfg LogConfig) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level),
	}
	if cfg.File != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, level))
	}
	return zap.New(zapcore.NewTee(cores...))
}

func run(cfg *Config, logger *zap.Logger) error {
	correction, err := cfg.correction()
	if err != nil {
		return err
	}
	sectionMerge, err := cfg.sectionMerge()
	if err != nil {
		return err
	}
	meshMerge := sceneio.MeshKeepSeparate
	if cfg.MergeMeshes {
		meshMerge = sceneio.MeshMerge
	}

	importer := sceneio.NewImporter()
	imported := importer.Import(sceneio.ImportParam{
		File:            cfg.Input,
		MeshMethod:      meshMerge,
		SectionMethod:   sectionMerge,
		ImportMaterials: cfg.ImportMaterials,
		Normalize:       cfg.Normalize,
		Progress:        progressLogger(logger, "import"),
	})
	if !imported.Success {
		return fmt.Errorf("import %s: %s", cfg.Input, imported.Error)
	}
	logger.Info("imported",
		zap.String("file", cfg.Input),
		zap.Int("meshes", len(imported.Meshes)),
		zap.Int("materials", len(imported.Materials)))

	scene := sceneio.NewScene()
	materials := materialHandles(imported.Materials)
	for i := range imported.Meshes {
		src := newImportedSource(&imported.Meshes[i], i, materials)
		scene.AddExportObject(src, "")
	}

	exporter := sceneio.NewExporter(scene)
	result := exporter.Export(sceneio.ExportParam{
		File:                cfg.Output,
		FormatID:            cfg.Format,
		CombineSameMaterial: cfg.CombineSameMaterial,
		OverrideExisting:    cfg.Overwrite,
		Correction:          correction,
		Progress:            progressLogger(logger, "export"),
	})
	if !result.Success {
		return fmt.Errorf("export %s: %s", cfg.Output, result.Error)
	}
	logger.Info("exported",
		zap.String("file", cfg.Output),
		zap.Int("skipped", result.NumSourcesSkipped))
	return nil
}

func progressLogger(logger *zap.Logger, stage string) sceneio.ProgressFunc {
	return func(p sceneio.Progress) {
		logger.Debug("progress",
			zap.String("stage", stage),
			zap.String("phase", p.Phase.String()),
			zap.Int("current", p.Current),
			zap.Int("max", p.Max))
	}
}
