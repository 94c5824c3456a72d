// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// 利用者向けのメッセージはフランス語で記述する。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, import, content, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeAuthRequired       = "AUTH_REQUIRED"
	ErrCodeDigestNotFound     = "DIGEST_NOT_FOUND"
	ErrCodeDigestDateConflict = "DIGEST_DATE_CONFLICT"
	ErrCodeItemNotFound       = "ITEM_NOT_FOUND"
	ErrCodeInvalidItem        = "INVALID_ITEM"
	ErrCodeInvalidReaction    = "INVALID_REACTION"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"

	ErrCodeEmptyInput        = "EMPTY_INPUT"
	ErrCodeInvalidJSON       = "INVALID_JSON"
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	ErrCodeNoValidItems      = "NO_VALID_ITEMS"
	ErrCodeNoItemsDetected   = "NO_ITEMS_DETECTED"
	ErrCodeImportFailed      = "IMPORT_FAILED"
	ErrCodeInvalidState      = "INVALID_STATE"

	ErrCodeInvalidURL  = "INVALID_URL"
	ErrCodeSSRFBlocked = "SSRF_BLOCKED"
	ErrCodeFetchFailed = "FETCH_FAILED"
	ErrCodeParseFailed = "PARSE_FAILED"

	ErrCodeInvalidImage  = "INVALID_IMAGE"
	ErrCodeImageTooLarge = "IMAGE_TOO_LARGE"

	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeLinkExpired        = "LINK_EXPIRED"
	ErrCodeInvalidLink        = "INVALID_LINK"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeAccessDenied       = "ACCESS_DENIED"
	ErrCodeAuthFailed         = "AUTH_FAILED"
	ErrCodeProviderDisabled   = "PROVIDER_DISABLED"
	ErrCodeCSRFInvalid        = "CSRF_INVALID"

	ErrCodeInternal = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエスト形式の不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Requête invalide : %s", reason),
		Category: "validation",
		Action:   "Vérifie le format de la requête.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentification requise.",
		Category: "auth",
		Action:   "Connecte-toi pour continuer.",
	}
}

// NewAuthRequiredError はログイン後に実行される保留アクションがある場合の未認証エラーを生成する。
func NewAuthRequiredError(label string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthRequired,
		Message:  fmt.Sprintf("Connecte-toi pour : %s", label),
		Category: "auth",
		Action:   "L'action sera effectuée automatiquement après la connexion.",
	}
}

// NewDigestNotFoundError はダイジェスト未検出エラーを生成する。
func NewDigestNotFoundError(digestID string) *APIError {
	return &APIError{
		Code:     ErrCodeDigestNotFound,
		Message:  fmt.Sprintf("Digest introuvable : %s", digestID),
		Category: "content",
		Action:   "Vérifie l'identifiant du digest.",
	}
}

// NewDigestDateConflictError は同じ日付のダイジェストが既に存在する場合のエラーを生成する。
func NewDigestDateConflictError(date string) *APIError {
	return &APIError{
		Code:     ErrCodeDigestDateConflict,
		Message:  fmt.Sprintf("Un digest existe déjà pour le %s.", date),
		Category: "content",
		Action:   "Modifie le digest existant ou choisis une autre date.",
	}
}

// NewItemNotFoundError は記事未検出エラーを生成する。
func NewItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeItemNotFound,
		Message:  fmt.Sprintf("Article introuvable : %s", itemID),
		Category: "content",
		Action:   "Vérifie l'identifiant de l'article.",
	}
}

// NewInvalidItemError は記事の入力値不正エラーを生成する。
func NewInvalidItemError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidItem,
		Message:  fmt.Sprintf("Article invalide : %s", reason),
		Category: "validation",
		Action:   "Corrige les champs de l'article puis réessaie.",
	}
}

// NewInvalidReactionError は許可されていない絵文字のエラーを生成する。
func NewInvalidReactionError(emoji string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidReaction,
		Message:  fmt.Sprintf("Réaction non supportée : %s", emoji),
		Category: "validation",
		Action:   "Choisis une réaction parmi 👍 🔥 💡 ❤️ 🎯.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "Utilisateur introuvable.",
		Category: "auth",
		Action:   "Reconnecte-toi.",
	}
}

// --- インポート関連 ---

// NewEmptyInputError は解析対象の入力が空の場合のエラーを生成する。
func NewEmptyInputError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeEmptyInput,
		Message:  message,
		Category: "import",
		Action:   "Colle le contenu à importer dans la zone de texte.",
	}
}

// NewInvalidJSONError はJSON構文エラーを生成する。
// 行・列と周辺の文字列をメッセージに含める。
func NewInvalidJSONError(reason string, line, column int, near string) *APIError {
	msg := fmt.Sprintf("JSON invalide : %s (ligne %d, colonne %d)", reason, line, column)
	if near != "" {
		msg += fmt.Sprintf(" près de « %s »", near)
	}
	return &APIError{
		Code:     ErrCodeInvalidJSON,
		Message:  msg,
		Category: "import",
		Action:   "Utilise « Nettoyer » pour corriger automatiquement les erreurs courantes, puis réessaie.",
	}
}

// NewUnsupportedFormatError はトップレベルの形式が配列でもitemsオブジェクトでもない場合のエラーを生成する。
func NewUnsupportedFormatError() *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedFormat,
		Message:  "Format invalide. Attendu: un tableau ou un objet avec une propriété 'items'",
		Category: "import",
		Action:   `Encadre tes articles dans [ ... ] ou { "items": [ ... ] }.`,
	}
}

// NewNoValidItemsError はtitleを持つ要素が1件もない場合のエラーを生成する。
func NewNoValidItemsError() *APIError {
	return &APIError{
		Code:     ErrCodeNoValidItems,
		Message:  "Aucun article valide trouvé. Chaque article doit avoir un 'title'",
		Category: "import",
		Action:   "Ajoute un champ 'title' non vide à chaque article.",
	}
}

// NewNoItemsDetectedError はテキストから記事ブロックを検出できなかった場合のエラーを生成する。
func NewNoItemsDetectedError() *APIError {
	return &APIError{
		Code:     ErrCodeNoItemsDetected,
		Message:  "Aucun article détecté. Séparez vos articles par des lignes vides.",
		Category: "import",
		Action:   "Sépare chaque article par une ligne vide ou commence chaque ligne par une puce.",
	}
}

// NewImportFailedError は一括作成の途中失敗エラーを生成する。
// 詳細はログにのみ記録する。
func NewImportFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeImportFailed,
		Message:  "Erreur lors de l'import.",
		Category: "import",
		Action:   "Vérifie les articles déjà importés dans le digest avant de réessayer.",
	}
}

// NewInvalidStateError はインポート画面の状態遷移が不正な場合のエラーを生成する。
func NewInvalidStateError(from, op string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  fmt.Sprintf("Action « %s » impossible depuis l'état « %s ».", op, from),
		Category: "import",
		Action:   "Analyse le contenu avant de l'importer.",
	}
}

// --- URL取得関連 ---

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("URL invalide : %s", reason),
		Category: "validation",
		Action:   "Saisis une URL commençant par http:// ou https://.",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "L'accès à cette URL est bloqué par la politique de sécurité.",
		Category: "validation",
		Action:   "Utilise l'URL d'un site public. Les adresses locales ou privées ne sont pas autorisées.",
	}
}

// NewFetchFailedError は外部URLの取得失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("Impossible de récupérer l'URL : %s", reason),
		Category: "import",
		Action:   "Vérifie l'URL puis réessaie dans quelques instants.",
	}
}

// NewParseFailedError はフィードの解析失敗エラーを生成する。
func NewParseFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeParseFailed,
		Message:  "Impossible d'analyser le flux RSS/Atom.",
		Category: "import",
		Action:   "Vérifie qu'il s'agit bien d'un flux RSS ou Atom valide.",
	}
}

// --- 画像アップロード関連 ---

// NewInvalidImageError は画像以外のファイルがアップロードされた場合のエラーを生成する。
func NewInvalidImageError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImage,
		Message:  "Le fichier doit être une image",
		Category: "validation",
		Action:   "Choisis un fichier JPEG, PNG, GIF ou WebP.",
	}
}

// NewImageTooLargeError は画像サイズ上限超過エラーを生成する。
func NewImageTooLargeError(maxMB int64) *APIError {
	return &APIError{
		Code:     ErrCodeImageTooLarge,
		Message:  fmt.Sprintf("L'image ne doit pas dépasser %dMB", maxMB),
		Category: "validation",
		Action:   "Réduis la taille de l'image puis réessaie.",
	}
}

// --- 認証関連 ---

// NewRateLimitedError は試行回数超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Trop de tentatives. Réessaie dans quelques minutes.",
		Category: "auth",
		Action:   "Patiente quelques minutes avant de réessayer.",
	}
}

// NewLinkExpiredError はログインリンクの期限切れ・使用済みエラーを生成する。
func NewLinkExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeLinkExpired,
		Message:  "Le lien de connexion a expiré ou est invalide. Réessaie.",
		Category: "auth",
		Action:   "Demande un nouveau lien de connexion.",
	}
}

// NewInvalidLinkError はトークンを含まないログインリンクのエラーを生成する。
func NewInvalidLinkError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLink,
		Message:  "Lien de connexion invalide. Réessaie.",
		Category: "auth",
		Action:   "Demande un nouveau lien de connexion.",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワードの誤りエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Email ou mot de passe incorrect.",
		Category: "auth",
		Action:   "Vérifie tes identifiants.",
	}
}

// NewAccessDeniedError は管理者権限がない場合のエラーを生成する。
func NewAccessDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessDenied,
		Message:  "Accès refusé. Ce compte n'a pas les droits admin.",
		Category: "auth",
		Action:   "Connecte-toi avec un compte administrateur.",
	}
}

// NewAuthFailedError は認証処理の汎用エラーを生成する。
// 外部サービスのエラー文言は含めない。
func NewAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  "Une erreur est survenue. Réessaie.",
		Category: "auth",
		Action:   "Réessaie dans quelques instants.",
	}
}

// NewProviderDisabledError は設定されていないOAuthプロバイダーが指定された場合のエラーを生成する。
func NewProviderDisabledError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderDisabled,
		Message:  fmt.Sprintf("Connexion avec %s indisponible.", provider),
		Category: "auth",
		Action:   "Utilise un autre moyen de connexion.",
	}
}

// NewCSRFInvalidError はCSRFトークン検証の失敗エラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "Session de formulaire expirée.",
		Category: "auth",
		Action:   "Recharge la page puis réessaie.",
	}
}

// NewInternalError は内部エラーを生成する。原因は利用者に見せない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Une erreur interne est survenue.",
		Category: "system",
		Action:   "Réessaie dans quelques instants.",
	}
}
