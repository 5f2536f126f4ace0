package parms

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/newtron-network/vfd/pkg/util"
)

// Watch reloads path whenever it changes and applies the log level and the
// cpu alarm threshold to rt. Other parameters need a restart. The parent
// directory is watched so editors that replace the file are seen.
func Watch(ctx context.Context, path string, rt *Runtime) error {
	log := util.WithComponent("parms")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			p, err := Load(path)
			if err != nil {
				log.Warnf("parameter reload ignored: %v", err)
				continue
			}
			rt.SetVerbosity(p.LogLevel)
			applied := rt.SetCPUAlarm(p.CPUAlarm)
			log.Infof("parameters reloaded: log_level=%d cpu_alarm=%d%%", p.LogLevel, int(applied*100))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn(err)
		}
	}
}
