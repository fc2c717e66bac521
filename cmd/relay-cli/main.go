package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "sessions":
		runSessions(os.Args[2:])
	case "snapshot":
		runSnapshot(os.Args[2:])
	case "health":
		runHealth(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "comando desconocido: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	usage := `relay-cli - herramientas operativas para el relay

Uso:
  relay-cli sessions [--addr http://127.0.0.1:8700] [--json]
  relay-cli snapshot --ticker <ticker> [--addr ...] [--json]
  relay-cli health   [--addr ...]

Comandos:
  sessions   Lista las sesiones de agente activas.
  snapshot   Muestra el último snapshot aceptado de un ticker.
  health     Liveness del relay.
`
	fmt.Fprintln(os.Stderr, usage)
}

func runSessions(args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	addr := fs.String("addr", "http://127.0.0.1:8700", "Dirección base del relay")
	jsonOutput := fs.Bool("json", false, "Imprimir la respuesta en formato JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "error parseando flags: %v\n", err)
		os.Exit(1)
	}

	body := mustGet(*addr + "/api/v1/sessions")
	if *jsonOutput {
		fmt.Println(string(body))
		return
	}

	var resp struct {
		Sessions []struct {
			AgentID    string `json:"agent_id"`
			UserID     string `json:"user_id"`
			Status     string `json:"status"`
			LiveOrders int    `json:"live_orders"`
			Timeouts   int    `json:"timeouts"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "error parseando respuesta: %v\n", err)
		os.Exit(1)
	}

	if len(resp.Sessions) == 0 {
		fmt.Println("No hay sesiones activas")
		return
	}
	for _, s := range resp.Sessions {
		fmt.Printf("%-14s %-40s %-12s órdenes=%d timeouts=%d\n",
			s.UserID, s.AgentID, s.Status, s.LiveOrders, s.Timeouts)
	}
}

func runSnapshot(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	addr := fs.String("addr", "http://127.0.0.1:8700", "Dirección base del relay")
	ticker := fs.String("ticker", "", "Ticker a consultar")
	jsonOutput := fs.Bool("json", false, "Imprimir la respuesta en formato JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "error parseando flags: %v\n", err)
		os.Exit(1)
	}

	if *ticker == "" {
		fmt.Fprintln(os.Stderr, "--ticker es requerido")
		fs.Usage()
		os.Exit(1)
	}

	body := mustGet(*addr + "/api/v1/market/snapshots/" + *ticker)
	if *jsonOutput {
		fmt.Println(string(body))
		return
	}

	var snapshot struct {
		SnapshotID        string  `json:"snapshot_id"`
		Ticker            string  `json:"ticker"`
		SpotPrice         float64 `json:"spot_price"`
		DealPrice         float64 `json:"deal_price"`
		ServerTimestampMs int64   `json:"server_timestamp_ms"`
		ExpirationCount   int     `json:"expiration_count"`
		StrikeCount       int     `json:"strike_count"`
		AgentID           string  `json:"agent_id"`
	}
	if err := json.Unmarshal(body, &snapshot); err != nil {
		fmt.Fprintf(os.Stderr, "error parseando respuesta: %v\n", err)
		os.Exit(1)
	}

	age := time.Since(time.UnixMilli(snapshot.ServerTimestampMs)).Round(time.Second)
	fmt.Printf("Ticker:       %s\n", snapshot.Ticker)
	fmt.Printf("Snapshot:     %s (hace %s)\n", snapshot.SnapshotID, age)
	fmt.Printf("Spot:         %.4f\n", snapshot.SpotPrice)
	fmt.Printf("Deal:         %.4f\n", snapshot.DealPrice)
	fmt.Printf("Cadena:       %d vencimientos × %d strikes\n", snapshot.ExpirationCount, snapshot.StrikeCount)
	fmt.Printf("Agente:       %s\n", snapshot.AgentID)
}

func runHealth(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://127.0.0.1:8700", "Dirección base del relay")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "error parseando flags: %v\n", err)
		os.Exit(1)
	}

	body := mustGet(*addr + "/api/v1/health")
	fmt.Println(string(body))
}

func mustGet(url string) []byte {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error consultando %s: %v\n", url, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error leyendo respuesta: %v\n", err)
		os.Exit(1)
	}
	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "%s respondió %d: %s\n", url, resp.StatusCode, string(body))
		os.Exit(1)
	}
	return body
}
