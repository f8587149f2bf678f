package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	app "plate-mask/internal/application"
	"plate-mask/internal/domain/entity"
)

const (
	msgStart = `👋 Привет! Я закрываю автомобильные номера на фотографиях.

📸 Отправьте /mask, затем фото машины, и я верну его с закрашенными номерами.

📋 Команды:
/mask — замаскировать номера на фото
/help — справка
/cancel — отменить текущую операцию`

	msgHelp = `ℹ️ Как пользоваться ботом:

1️⃣ Отправьте /mask
2️⃣ Пришлите фото (JPEG или PNG), бот найдёт номерные знаки
3️⃣ Вы получите то же фото с закрытыми номерами

Пока не нажата /cancel, можно присылать следующие фото.

💡 Чтобы сохранить исходное разрешение, отправляйте фото файлом.

📋 Команды:
/mask — начать
/cancel — отменить операцию`

	msgAwaitingPhoto   = "📸 Отправьте фото автомобиля."
	msgCancelled       = "❌ Операция отменена. Отправьте /mask, чтобы начать заново."
	msgSendPhoto       = "📸 Пожалуйста, отправьте фото автомобиля."
	msgMaskFirst       = "📋 Сначала отправьте /mask."
	msgUnknownCommand  = "❓ Неизвестная команда. Используйте /help для справки."
	msgProcessing      = "⏳ Ищу номера..."
	msgBusy            = "⏳ Предыдущее фото ещё обрабатывается, подождите."
	msgNoPlates        = "✅ Номера не найдены, фото не изменено."
	msgMasked          = "✅ Закрыто номеров: %d"
	msgBadImage        = "⚠️ Не получилось прочитать изображение. Пришлите JPEG или PNG."
	msgDetectorDown    = "⚠️ Распознавание сейчас недоступно. Попробуйте позже."
	msgProcessingError = "⚠️ Не удалось обработать изображение. Попробуйте ещё раз."
)

// Pipeline операции сервиса маскирования, нужные боту
type Pipeline interface {
	Process(ctx context.Context, upload entity.UploadedImage) (*entity.ArtifactRef, error)
	Retrieve(ctx context.Context, filename string) ([]byte, error)
}

// botAPI часть клиента Telegram, которой пользуется бот
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot представляет Telegram-бота
type Bot struct {
	api      botAPI
	users    *app.UserService
	pipeline Pipeline
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewBot создаёт нового бота
func NewBot(token string, users *app.UserService, pipeline Pipeline, maxBytes int64, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("telegram bot authorized", "account", api.Self.UserName)

	return newBot(api, users, pipeline, maxBytes, logger), nil
}

func newBot(api botAPI, users *app.UserService, pipeline Pipeline, maxBytes int64, logger *slog.Logger) *Bot {
	return &Bot{
		api:      api,
		users:    users,
		pipeline: pipeline,
		client:   &http.Client{Timeout: 30 * time.Second},
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Run обрабатывает сообщения до отмены ctx
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.wg.Wait()
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			// фото обрабатываются долго, поэтому каждое сообщение в своей горутине
			b.wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer b.wg.Done()
				b.handleMessage(ctx, msg)
			}(update.Message)
		}
	}
}

// handleMessage обрабатывает входящее сообщение
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	user, err := b.users.Get(ctx, msg.From.ID, msg.Chat.ID)
	if err != nil {
		b.logger.Error("get user", "user", msg.From.ID, "error", err)
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg, user)
	case len(msg.Photo) > 0:
		// Telegram пересжимает фото в JPEG, берём самое большое
		photo := msg.Photo[len(msg.Photo)-1]
		b.handleImage(ctx, msg, user, photo.FileID, "image/jpeg", "photo.jpg")
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		b.handleImage(ctx, msg, user, msg.Document.FileID, msg.Document.MimeType, msg.Document.FileName)
	default:
		b.sendMessage(msg.Chat.ID, msgSendPhoto)
	}
}

// handleCommand обрабатывает команды бота
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, user *entity.User) {
	var (
		err   error
		reply string
	)
	switch msg.Command() {
	case "start":
		_, err = b.users.Cancel(ctx, user.ID, user.ChatID)
		reply = msgStart

	case "help":
		reply = msgHelp

	case "mask":
		_, err = b.users.BeginMasking(ctx, user.ID, user.ChatID)
		reply = msgAwaitingPhoto

	case "cancel":
		_, err = b.users.Cancel(ctx, user.ID, user.ChatID)
		reply = msgCancelled

	default:
		reply = msgUnknownCommand
	}

	switch {
	case errors.Is(err, app.ErrUserBusy):
		reply = msgBusy
	case err != nil:
		b.logger.Error("update user state", "user", user.ID, "error", err)
		reply = msgProcessingError
	}
	b.sendMessage(msg.Chat.ID, reply)
}

// handleImage прогоняет изображение через конвейер и отправляет результат
func (b *Bot) handleImage(ctx context.Context, msg *tgbotapi.Message, user *entity.User, fileID, contentType, filename string) {
	log := b.logger.With("user", user.ID, "chat", msg.Chat.ID)

	if _, err := b.users.StartProcessing(ctx, user.ID, user.ChatID); err != nil {
		switch {
		case errors.Is(err, app.ErrUserBusy):
			b.sendMessage(msg.Chat.ID, msgBusy)
		case errors.Is(err, app.ErrPhotoNotExpected):
			b.sendMessage(msg.Chat.ID, msgMaskFirst)
		default:
			log.Error("update user state", "error", err)
		}
		return
	}
	defer func() {
		if _, err := b.users.FinishProcessing(ctx, user.ID, user.ChatID); err != nil {
			log.Error("reset user state", "error", err)
		}
	}()

	b.sendMessage(msg.Chat.ID, msgProcessing)

	data, err := b.downloadFile(ctx, fileID)
	if err != nil {
		log.Warn("download photo", "error", err)
		b.sendMessage(msg.Chat.ID, replyFor(err))
		return
	}

	ref, err := b.pipeline.Process(ctx, entity.UploadedImage{Data: data, ContentType: contentType, Filename: filename})
	if err != nil {
		log.Warn("process photo", "error", err)
		b.sendMessage(msg.Chat.ID, replyFor(err))
		return
	}

	masked, err := b.pipeline.Retrieve(ctx, ref.Filename)
	if err != nil {
		log.Error("retrieve artifact", "artifact", ref.Filename, "error", err)
		b.sendMessage(msg.Chat.ID, msgProcessingError)
		return
	}

	caption := msgNoPlates
	if ref.Regions > 0 {
		caption = fmt.Sprintf(msgMasked, ref.Regions)
	}

	file := tgbotapi.FileBytes{Name: ref.Filename, Bytes: masked}
	if len(msg.Photo) > 0 {
		reply := tgbotapi.NewPhoto(msg.Chat.ID, file)
		reply.Caption = caption
		reply.ReplyToMessageID = msg.MessageID
		b.send(reply)
		return
	}
	// документ возвращаем документом, чтобы Telegram не пересжал результат
	reply := tgbotapi.NewDocument(msg.Chat.ID, file)
	reply.Caption = caption
	reply.ReplyToMessageID = msg.MessageID
	b.send(reply)
}

// downloadFile скачивает файл из Telegram, не больше maxBytes
func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	fileURL, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, b.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > b.maxBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", entity.ErrInvalidInput, b.maxBytes)
	}
	return data, nil
}

// replyFor подбирает текст ответа по категории ошибки
func replyFor(err error) string {
	switch {
	case errors.Is(err, entity.ErrInvalidInput), errors.Is(err, entity.ErrDecode):
		return msgBadImage
	case errors.Is(err, entity.ErrDetection), errors.Is(err, entity.ErrDetectionTimeout):
		return msgDetectorDown
	default:
		return msgProcessingError
	}
}

// sendMessage отправляет текстовое сообщение
func (b *Bot) sendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.logger.Error("telegram send", "error", err)
	}
}
