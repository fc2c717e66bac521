// Package telemetry proporciona observabilidad completa para el relay mediante los tres pilares:
//
// 1. Logs: Registro estructurado JSON compatible con Loki
// 2. Métricas: OpenTelemetry exportables a Prometheus
// 3. Trazas: Trazado distribuido con OpenTelemetry/Jaeger
//
// Uso básico:
//
//	import (
//	    "context"
//	    "github.com/donkeithross3-commits/ma-tracker-relay/telemetry"
//	)
//
//	func main() {
//	    ctx := context.Background()
//
//	    // Inicializar telemetría
//	    client, err := telemetry.New(ctx, "ma-relay", "production")
//	    if err != nil {
//	        panic(err)
//	    }
//	    defer client.Shutdown(ctx)
//
//	    // Registrar logs
//	    client.Info(ctx, "Route completed")
//
//	    // Crear span
//	    ctx, span := client.StartSpan(ctx, "route_request")
//	    defer span.End()
//
//	    // Registrar métricas
//	    client.RecordCounter(ctx, "relay.route.dispatched", 1)
//	}
//
// El paquete sigue las mejores prácticas de observabilidad y es compatible
// con el ecosistema OpenTelemetry estándar.
package telemetry
