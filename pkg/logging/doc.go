// Package logging builds the *slog.Logger used by every groupsocket
// component.
//
// # Usage
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.ParseLevel(cfg.Log.Level),
//	    Format: logging.ParseFormat(cfg.Log.Format),
//	})
//
//	logger.Info("server started", "addr", ":8080")
//
// Library packages never construct loggers themselves. They accept one via a
// WithLogger option and default to logging.Nop().
package logging
