package utils

import "time"

// NowUnixMilli retorna el timestamp actual en milisegundos desde Unix epoch.
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// UnixMilliToTime convierte un timestamp Unix en milisegundos a time.Time.
func UnixMilliToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// ElapsedMsSince calcula los milisegundos transcurridos desde un time.Time.
//
// Útil para histogramas de latencia de operaciones ruteadas.
func ElapsedMsSince(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
