package web

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/jroyseravila/heart/internal/common"
	"github.com/jroyseravila/heart/internal/features"
	"github.com/jroyseravila/heart/internal/ml"
	"github.com/jroyseravila/heart/internal/storage"

	"github.com/rs/zerolog/log"
)

var pageNames = []string{"inicio", "prediccion", "acerca"}

var templateFuncs = template.FuncMap{
	"ts": func(rec storage.LoadRecord) string {
		return rec.LoadedAt.Local().Format("2006-01-02 15:04:05")
	},
}

func parsePages() map[string]*template.Template {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		pages[name] = template.Must(template.New("layout.html").
			Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}
	return pages
}

// banner is the sidebar load status.
type banner struct {
	OK      bool
	Message string
}

// pageData is shared by every page template.
type pageData struct {
	Active     string
	Banner     banner
	Ranges     map[string]features.Range
	Form       features.PatientForm
	Result     *resultView
	Error      string
	Status     ml.StoreStatus
	Loads      []storage.LoadRecord
	ProgressWS bool
}

type resultView struct {
	Lines []string
	Chart chartView
}

func (s *Server) banner() banner {
	store := s.predictor.Store()
	if s.predictor.Available() {
		return banner{OK: true, Message: common.MsgModelLoaded}
	}
	if store == nil {
		return banner{Message: common.MsgModelNotLoaded}
	}
	if store.NotFound() {
		return banner{Message: fmt.Sprintf(common.MsgModelNotFound, store.Path())}
	}
	return banner{Message: fmt.Sprintf(common.MsgModelLoadFailed, store.Path(), store.LoadError())}
}

func (s *Server) newPageData(active string) pageData {
	return pageData{
		Active: active,
		Banner: s.banner(),
		Ranges: map[string]features.Range{
			"edad":       features.AgeRange,
			"presion":    features.RestingBPRange,
			"colesterol": features.CholesterolRange,
			"frecuencia": features.MaxHeartRateRange,
		},
		Form:       features.FormFromPatient(features.DefaultPatient()),
		ProgressWS: s.cfg.ProgressDelay > 0,
	}
}

func (s *Server) render(w http.ResponseWriter, name string, status int, data pageData) {
	tmpl, ok := s.pages[name]
	if !ok {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Error().Err(err).Str("page", name).Msg("failed to render page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, "inicio", http.StatusOK, s.newPageData("inicio"))
}

func (s *Server) handlePredictionPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, "prediccion", http.StatusOK, s.newPageData("prediccion"))
}

func (s *Server) handlePredictionSubmit(w http.ResponseWriter, r *http.Request) {
	data := s.newPageData("prediccion")

	r.Body = http.MaxBytesReader(w, r.Body, common.MaxRequestBodyBytes)
	if err := r.ParseForm(); err != nil {
		data.Error = "Formulario inválido."
		s.render(w, "prediccion", http.StatusBadRequest, data)
		return
	}

	var form features.PatientForm
	if err := s.decoder.Decode(&form, r.PostForm); err != nil {
		data.Error = "Formulario inválido: " + err.Error()
		s.render(w, "prediccion", http.StatusBadRequest, data)
		return
	}
	data.Form = form

	patient, err := form.Patient()
	if err != nil {
		data.Error = "Datos fuera de rango: " + err.Error()
		s.render(w, "prediccion", http.StatusBadRequest, data)
		return
	}

	res, err := s.predictor.Predict(r.Context(), patient)
	if err != nil {
		status, msg := predictionFailure(err)
		data.Error = msg
		s.render(w, "prediccion", status, data)
		return
	}

	data.Result = &resultView{
		Lines: res.Lines(),
		Chart: donutChart(common.ChartTitle, []slice{
			{Label: common.LabelNoRisk, Value: res.NoRiskPercent(), Color: colorNoRisk},
			{Label: common.LabelRisk, Value: res.RiskPercent(), Color: colorRisk},
		}),
	}
	s.render(w, "prediccion", http.StatusOK, data)
}

// predictionFailure maps a predictor error to a status and the page message.
func predictionFailure(err error) (int, string) {
	if errors.Is(err, ml.ErrModelUnavailable) {
		return http.StatusServiceUnavailable, fmt.Sprintf(common.MsgPredictionFailed, common.MsgModelNotLoaded)
	}
	if ml.IsInferenceFailure(err) {
		return http.StatusUnprocessableEntity, fmt.Sprintf(common.MsgPredictionFailed, err)
	}
	return http.StatusBadRequest, fmt.Sprintf(common.MsgPredictionFailed, err)
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	data := s.newPageData("acerca")
	data.Status = s.predictor.Store().Status()
	if s.ledger != nil {
		loads, err := s.ledger.ModelLoads(common.DefaultLedgerLimit)
		if err != nil {
			log.Warn().Err(err).Msg("failed to read model load ledger")
		}
		data.Loads = loads
	}
	s.render(w, "acerca", http.StatusOK, data)
}
