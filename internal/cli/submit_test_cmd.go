package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const defaultSubmitURL = "http://localhost:8080/api/contact-unified"

var submitTestCmd = &cobra.Command{
	Use:   "submit-test",
	Short: "Post a sample submission to a running server",
	Long: `Post a fixed sample submission to an intake route and print the
response status, the submission id and every per-backend success flag.`,
	Example: `  contactd submit-test
  contactd submit-test --url http://localhost:8080/api/submit-contact`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return submitTest(ctx, cmd.OutOrStdout(), &http.Client{}, url)
	},
}

func init() {
	submitTestCmd.Flags().String("url", defaultSubmitURL, "intake endpoint")
	submitTestCmd.Flags().Duration("timeout", 30*time.Second, "request timeout")
}

// sampleSubmission mirrors what the site form sends.
var sampleSubmission = map[string]any{
	"email":     "test@example.com",
	"firstName": "John",
	"lastName":  "Doe",
	"company":   "Test Company",
	"jobTitle":  "CTO",
	"country":   "United States",
	"phone":     "+1 (555) 123-4567",
	"message":   "This is a test message from contactd submit-test.",
	"consent":   true,
}

// submitTest posts sampleSubmission to url. A non-2xx answer is reported and
// returned as an error.
func submitTest(ctx context.Context, out io.Writer, client *http.Client, url string) error {
	body, err := json.Marshal(sampleSubmission)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	fmt.Fprintf(out, "status: %d\n", resp.StatusCode)

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		fmt.Fprintf(out, "body: %s\n", strings.TrimSpace(string(raw)))
	} else {
		printSubmitResult(out, parsed)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("submission rejected with status %d", resp.StatusCode)
	}
	return nil
}

func printSubmitResult(out io.Writer, res map[string]any) {
	if id, ok := res["id"].(string); ok {
		fmt.Fprintf(out, "id: %s\n", id)
	}
	if msg, ok := res["message"].(string); ok {
		fmt.Fprintf(out, "message: %s\n", msg)
	}
	if e, ok := res["error"].(string); ok {
		fmt.Fprintf(out, "error: %s\n", e)
	}

	var flags []string
	for k := range res {
		if strings.HasSuffix(k, "Success") {
			flags = append(flags, k)
		}
	}
	sort.Strings(flags)
	for _, k := range flags {
		fmt.Fprintf(out, "%s: %v\n", k, res[k])
	}
}
