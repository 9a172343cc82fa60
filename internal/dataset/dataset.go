// Package dataset holds the session and product records the model builders
// consume, and the sources they are read from.
package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Session is one recorded browsing or purchase event. Only UserID and
// ProductID take part in the interaction matrix; the remaining fields are
// carried for the evaluation split and optional category annotation.
type Session struct {
	SessionID    int64  `json:"session_id"`
	Timestamp    string `json:"timestamp"`
	UserID       int64  `json:"user_id"`
	ProductID    int64  `json:"product_id"`
	EventType    string `json:"event_type"`
	CategoryPath string `json:"category_path,omitempty"`
}

type Product struct {
	ProductID    int64   `json:"product_id"`
	ProductName  string  `json:"product_name"`
	CategoryPath string  `json:"category_path"`
	Price        float64 `json:"price"`
	UserRating   float64 `json:"user_rating"`
}

// Source provides the raw records for a model build.
type Source interface {
	Sessions(ctx context.Context) ([]Session, error)
	Products(ctx context.Context) ([]Product, error)
}

// FileSource reads sessions and products from JSON lines files.
type FileSource struct {
	SessionsPath string
	ProductsPath string
}

func NewFileSource(sessionsPath, productsPath string) *FileSource {
	return &FileSource{SessionsPath: sessionsPath, ProductsPath: productsPath}
}

func (s *FileSource) Sessions(ctx context.Context) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.SessionsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sessions file: %w", err)
	}
	defer f.Close()

	return ReadSessionsJSONL(ctx, f)
}

func (s *FileSource) Products(ctx context.Context) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.ProductsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open products file: %w", err)
	}
	defer f.Close()

	return ReadProductsJSONL(ctx, f)
}

// ReadSessionsJSONL decodes one session per line. Blank lines are skipped and
// fields not listed on Session are ignored. Reading stops once ctx is done.
func ReadSessionsJSONL(ctx context.Context, r io.Reader) ([]Session, error) {
	var sessions []Session
	err := readJSONL(ctx, r, func(line []byte) error {
		var s Session
		if err := json.Unmarshal(line, &s); err != nil {
			return err
		}
		sessions = append(sessions, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	return sessions, nil
}

// ReadProductsJSONL decodes one product per line.
func ReadProductsJSONL(ctx context.Context, r io.Reader) ([]Product, error) {
	var products []Product
	err := readJSONL(ctx, r, func(line []byte) error {
		var p Product
		if err := json.Unmarshal(line, &p); err != nil {
			return err
		}
		products = append(products, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}
	return products, nil
}

func readJSONL(ctx context.Context, r io.Reader, decode func([]byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		if err := decode(line); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}
