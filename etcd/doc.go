// Package etcd proporciona un cliente para interactuar con ETCD que puede ser
// utilizado para recuperar variables de configuración.
//
// Estructura de claves:
// El cliente sigue el patrón de ruta `/APP/ENV/VAR_KEY` donde:
//   - `APP`: Nombre de la aplicación
//   - `ENV`: Entorno (development, testing, production)
//   - `VAR_KEY`: Clave de la variable
//
// Características principales:
//   - Cliente configurable mediante opciones funcionales (functional options pattern)
//   - Soporte para configuración mediante variables de entorno
//   - Cliente por defecto y singleton para usos simples
//   - Funciones de conveniencia para diferentes tipos de datos
//
// Ejemplo básico de uso:
//
//	client, err := etcd.New(
//		etcd.WithApp("marelay"),
//		etcd.WithEnv("development"),
//		etcd.WithTimeout(5 * time.Second),
//	)
//	if err != nil {
//		log.Fatalf("Error creating etcd client: %v", err)
//	}
//	defer client.Close()
//
//	// Obtener variables usando diferentes métodos
//	strValue, _ := client.GetVar(ctx, "postgres/host")
//	intValue, _ := client.GetVarInt(ctx, "relay/http_port")
//	boolValue, _ := client.GetVarBool(ctx, "relay/audit_enabled")
//	durValue, _ := client.GetVarDuration(ctx, "relay/route_timeout_ms")
package etcd
