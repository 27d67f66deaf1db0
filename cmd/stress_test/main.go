package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
)

type options struct {
	baseURL   string
	shoppers  int
	productID string
	email     string
	password  string
}

func main() {
	var opts options

	root := &cobra.Command{
		Use:          "stress_test",
		Short:        "Run concurrent checkouts against a running server and verify every order landed",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	f := root.Flags()
	f.StringVar(&opts.baseURL, "url", "http://localhost:8080", "server base URL")
	f.IntVar(&opts.shoppers, "shoppers", 50, "number of concurrent shoppers")
	f.StringVar(&opts.productID, "product", "", "product to buy; the first listed product when empty")
	f.StringVar(&opts.email, "admin-email", os.Getenv("ADMIN_EMAIL"), "admin email used to count orders")
	f.StringVar(&opts.password, "admin-password", os.Getenv("ADMIN_PASSWORD"), "admin password used to count orders")

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	admin := newSession()
	if err := admin.post(ctx, opts.baseURL+"/api/v1/admin/login", map[string]string{
		"email": opts.email, "password": opts.password,
	}, nil); err != nil {
		return fmt.Errorf("admin login: %w", err)
	}

	if opts.productID == "" {
		var products []struct {
			ID string `json:"id"`
		}
		if err := admin.get(ctx, opts.baseURL+"/api/v1/products", &products); err != nil {
			return err
		}
		if len(products) == 0 {
			return fmt.Errorf("catalog is empty, run the seed command first")
		}
		opts.productID = products[0].ID
	}

	before, err := countOrders(ctx, admin, opts.baseURL)
	if err != nil {
		return err
	}

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent shoppers, each with its own session
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < opts.shoppers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			if err := shop(ctx, opts, n); err != nil {
				fmt.Fprintf(os.Stderr, "shopper %d: %v\n", n, err)
				failCount.Add(1)
				return
			}
			successCount.Add(1)
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	after, err := countOrders(ctx, admin, opts.baseURL)
	if err != nil {
		return err
	}

	// Results
	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Shoppers:         %d\n", opts.shoppers)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Orders stored:    %d\n", after-before)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if after-before == int(success) {
		fmt.Println("PASS: every accepted checkout is in the order book")
		return nil
	}
	return fmt.Errorf("FAIL: %d checkouts accepted but %d orders stored", success, after-before)
}

func shop(ctx context.Context, opts options, n int) error {
	s := newSession()
	if err := s.post(ctx, opts.baseURL+"/api/v1/cart/items", map[string]any{
		"product_id": opts.productID, "quantity": 1,
	}, nil); err != nil {
		return fmt.Errorf("add item: %w", err)
	}
	return s.post(ctx, opts.baseURL+"/api/v1/checkout", map[string]string{
		"name":    fmt.Sprintf("Shopper %d", n),
		"phone":   fmt.Sprintf("06%08d", n),
		"address": "Chefchaouen",
	}, nil)
}

func countOrders(ctx context.Context, s *session, baseURL string) (int, error) {
	var orders []json.RawMessage
	if err := s.get(ctx, baseURL+"/api/v1/admin/orders", &orders); err != nil {
		return 0, fmt.Errorf("list orders: %w", err)
	}
	return len(orders), nil
}

type session struct {
	client *http.Client
}

func newSession() *session {
	jar, _ := cookiejar.New(nil)
	return &session{client: &http.Client{Jar: jar, Timeout: 30 * time.Second}}
}

func (s *session) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return s.do(req, out)
}

func (s *session) post(ctx context.Context, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, out)
}

func (s *session) do(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %d %s", req.Method, req.URL.Path, resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
