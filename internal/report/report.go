// Package report shapes the per-job reply spec.md §4.7 describes:
// timings, iteration count, memory delta, artifact filename, and the
// dual human/machine timestamp formats.
package report

import "time"

// Status tags a JobReport's outcome.
type Status string

const (
	Sucesso Status = "sucesso"
	Erro    Status = "erro"
)

// JobReport is C7's realization of spec.md §3's JobReport entity.
type JobReport struct {
	Status              Status  `json:"status"`
	ImagemGerada        string  `json:"imagem_gerada,omitempty"`
	TempoReconstrucaoS  float64 `json:"tempo_reconstrucao_s,omitempty"`
	Iteracoes           int     `json:"iteracoes,omitempty"`
	MemoriaMB           float64 `json:"memoria_mb,omitempty"`
	ErroFinal           float64 `json:"erro_final,omitempty"`
	Mensagem            string  `json:"mensagem,omitempty"`
	RetryAposS          []int   `json:"retry_apos_s,omitempty"`

	// InicioLocal and FimLocal are human-facing, logged by the caller
	// rather than serialized; InicioISO and FimISO are the machine-facing
	// equivalents spec.md §3's JobReport lists alongside them.
	InicioLocal string `json:"-"`
	FimLocal    string `json:"-"`
	InicioISO   string `json:"inicio,omitempty"`
	FimISO      string `json:"fim,omitempty"`
}

// Success builds the success envelope spec.md §6 requires, stamping
// inicio/fim in both the human-facing local form and the ISO-8601 form
// spec.md §4.7 lists for JobReport.
func Success(imagemGerada string, tempoS float64, iteracoes int, memoriaMB, erroFinal float64, inicio, fim time.Time) JobReport {
	return JobReport{
		Status:             Sucesso,
		ImagemGerada:       imagemGerada,
		TempoReconstrucaoS: tempoS,
		Iteracoes:          iteracoes,
		MemoriaMB:          memoriaMB,
		ErroFinal:          erroFinal,
		InicioLocal:        FormatLocal(inicio),
		FimLocal:           FormatLocal(fim),
		InicioISO:          FormatISO(inicio),
		FimISO:             FormatISO(fim),
	}
}

// Failure builds the error envelope spec.md §6 requires.
func Failure(mensagem string) JobReport {
	return JobReport{Status: Erro, Mensagem: mensagem}
}

// Overloaded builds the 503 envelope, adding the client retry hint
// surfaced from cliente.py's random.uniform(4, 10) backoff window.
func Overloaded(mensagem string) JobReport {
	return JobReport{Status: Erro, Mensagem: mensagem, RetryAposS: []int{4, 10}}
}

// FormatLocal renders t as "DD/MM HH:MM:SS" for human-facing logs,
// matching the original source's strftime('%d/%m %H:%M:%S').
func FormatLocal(t time.Time) string {
	return t.Local().Format("02/01 15:04:05")
}

// FormatISO renders t as an ISO-8601 string for machine fields.
func FormatISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
