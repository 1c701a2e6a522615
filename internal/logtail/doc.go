// Package logtail reads the end of gridder's JSON log file.
//
// # Overview
//
// The TUI owns the terminal, so the application logs to a file instead. This
// package backs the "gridder logs" command: it reads the last N lines of that
// file and decodes each zap JSON entry into an Entry that formats as a single
// readable line.
//
// # Reading
//
// Tail keeps a ring buffer of maxLines strings and scans the file once, so
// memory stays bounded by the number of lines requested rather than the file
// size. A missing file is not an error; it yields no lines.
//
// # Parsing
//
// Parse understands the keys of the production zap encoder (ts, level, logger,
// msg). Any other key becomes a field. Lines that are not JSON, such as a
// partial write, are kept verbatim in Raw.
//
// Example usage:
//
//	entries, err := logtail.Read(cfg.LogFile, 200, zapcore.WarnLevel)
//	if err != nil {
//		return err
//	}
//	for _, e := range entries {
//		fmt.Println(e.Format())
//	}
package logtail
