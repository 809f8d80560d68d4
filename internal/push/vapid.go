package push

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/chatlink/internal/logger"
)

// VAPIDKeys: пара ключей для Web Push (VAPID), base64url без паддинга.
type VAPIDKeys struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

const defaultVAPIDKeysPath = "config/vapid.json"

// Длины ключей P-256: несжатая точка и скаляр.
const (
	vapidPublicLen  = 65
	vapidPrivateLen = 32
)

var ErrInvalidVAPIDKeys = errors.New("invalid VAPID keys")

// Validate проверяет, что оба ключа являются base64url нужной длины.
// Браузер отклоняет подписку с битым applicationServerKey без внятной ошибки, поэтому проверяем заранее.
func (k *VAPIDKeys) Validate() error {
	if k == nil {
		return ErrInvalidVAPIDKeys
	}
	if n := decodedLen(k.PublicKey); n != vapidPublicLen {
		return fmt.Errorf("%w: public key is %d bytes, want %d", ErrInvalidVAPIDKeys, n, vapidPublicLen)
	}
	if n := decodedLen(k.PrivateKey); n != vapidPrivateLen {
		return fmt.Errorf("%w: private key is %d bytes, want %d", ErrInvalidVAPIDKeys, n, vapidPrivateLen)
	}
	return nil
}

func decodedLen(s string) int {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(s), "="))
	if err != nil {
		return -1
	}
	return len(b)
}

// ResolveVAPIDKeys: заданная пара (например, из env) имеет приоритет над файлом.
// Если задан только один ключ или пара невалидна, возвращаем ошибку и файл не трогаем.
func ResolveVAPIDKeys(publicKey, privateKey, path string) (*VAPIDKeys, error) {
	if publicKey == "" && privateKey == "" {
		return EnsureVAPIDKeys(path)
	}
	keys := &VAPIDKeys{PublicKey: publicKey, PrivateKey: privateKey}
	if err := keys.Validate(); err != nil {
		return nil, err
	}
	return keys, nil
}

// EnsureVAPIDKeys загружает ключи из файла, а при его отсутствии или порче генерирует и сохраняет новую пару.
// Путь: аргумент, затем env VAPID_KEYS_FILE, затем config/vapid.json.
func EnsureVAPIDKeys(path string) (*VAPIDKeys, error) {
	if path == "" {
		path = os.Getenv("VAPID_KEYS_FILE")
	}
	if path == "" {
		path = defaultVAPIDKeysPath
	}
	keys, err := loadVAPIDKeys(path)
	if err == nil {
		return keys, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		logger.Errorf("push: VAPID-ключи в %s не годятся (%v), генерируем новые", path, err)
	}
	// webpush.GenerateVAPIDKeys возвращает (private, public).
	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return nil, fmt.Errorf("generate VAPID keys: %w", err)
	}
	keys = &VAPIDKeys{PublicKey: pub, PrivateKey: priv}
	if err := saveVAPIDKeys(path, keys); err != nil {
		logger.Errorf("push: не удалось сохранить VAPID-ключи в %s: %v (ключи сгенерированы и используются)", path, err)
		return keys, nil
	}
	logger.Infof("push: VAPID-ключи сгенерированы и сохранены в %s", path)
	return keys, nil
}

func loadVAPIDKeys(path string) (*VAPIDKeys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var keys VAPIDKeys
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := keys.Validate(); err != nil {
		return nil, err
	}
	return &keys, nil
}

// saveVAPIDKeys пишет через временный файл, чтобы параллельный старт api и push не прочитал половину JSON.
func saveVAPIDKeys(path string, keys *VAPIDKeys) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".vapid-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
