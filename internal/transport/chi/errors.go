package chi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/qanoneed/internal/domain"
	"github.com/kailas-cloud/qanoneed/internal/logger"
	"github.com/kailas-cloud/qanoneed/internal/usecase/consult"
)

// User-facing error messages.
const (
	msgQuestionRequired     = "يرجى كتابة سؤالك."
	msgInvalidBody          = "تعذر قراءة الطلب، يرجى إرسال JSON صحيح."
	msgInvalidInput         = "المدخلات غير مكتملة، يرجى مراجعة الطلب."
	msgInvalidPeriod        = "الفترة يجب أن تكون day أو month."
	msgClarify              = "يرجى توضيح سؤالك أكثر حتى نتمكن من تحديد المجال القانوني المناسب."
	msgStreamingUnsupported = "البث غير مدعوم على هذا الاتصال."
	msgUnauthorized         = "مفتاح الوصول مفقود أو غير صالح."
	msgNotFound             = "المسار المطلوب غير موجود."
	msgMethodNotAllowed     = "طريقة الطلب غير مسموحة لهذا المسار."
	msgInternal             = "حدث خطأ داخلي، يرجى المحاولة لاحقاً."
)

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, fixed(msgInvalidInput)),
		sentinelHandler(domain.ErrClassificationMiss, http.StatusUnprocessableEntity, fixed(msgClarify)),
		sentinelHandler(domain.ErrGenerationQuotaExceeded, http.StatusTooManyRequests, consult.Apology),
	}
}

func fixed(msg string) func(error) string {
	return func(error) string { return msg }
}

func sentinelHandler(sentinel error, status int, detail func(error) string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, detail(err))
		return true
	}
}

// handleDomainError maps err through the handler chain. Anything unmatched
// is a 500 carrying the apology.
func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Warn("request failed", zap.Error(err))
			return
		}
	}
	log.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, consult.Apology(err))
}
